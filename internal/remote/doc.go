// Package remote contains the HTTP clients for the cloud collaborators: the
// sync ingestion endpoint and the licensing service.
//
// Every request carries a short-lived HS256 device token naming the machine
// and its tenant scope. Transport failures wrap errors.ErrUnreachable so the
// sync worker can tell "offline" from "rejected".
package remote
