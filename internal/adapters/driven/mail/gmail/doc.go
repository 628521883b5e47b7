// Package gmail fetches mail records from the Gmail API.
//
// Messages are requested in raw RFC 5322 form and parsed by the eml
// package. Access uses OAuth tokens stored per account, requests are
// rate limited, and API errors map onto domain errors so the mail sync
// service can tell an expired grant from a transient quota problem.
package gmail
