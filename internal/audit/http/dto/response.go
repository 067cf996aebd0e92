// Package dto provides data transfer objects for the audit ledger endpoints.
package dto

import (
	auditDomain "github.com/allisson/casevault/internal/audit/domain"
)

// ListEntriesResponse is one page of a tenant ledger in sequence order.
// NextFromSeq is set when more entries may follow.
type ListEntriesResponse struct {
	TenantID    string               `json:"tenant_id"`
	Entries     []*auditDomain.Entry `json:"entries"`
	NextFromSeq uint64               `json:"next_from_seq,omitempty"`
}

// MapEntriesToResponse builds a page response. A full page yields the
// sequence after its last entry as NextFromSeq.
func MapEntriesToResponse(tenantID string, entries []*auditDomain.Entry, limit int) ListEntriesResponse {
	response := ListEntriesResponse{
		TenantID: tenantID,
		Entries:  entries,
	}
	if response.Entries == nil {
		response.Entries = []*auditDomain.Entry{}
	}
	if len(entries) > 0 && len(entries) == limit {
		response.NextFromSeq = entries[len(entries)-1].Sequence + 1
	}
	return response
}
