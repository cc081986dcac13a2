package agent

import "strings"

// mergeTicketFields overlays next onto prior field by field. A populated
// prior value is never replaced by a blank next value; a populated next
// value wins over prior. The schema is fixed, so the merge is a flat set
// of overlays plus one nested record, which keeps the no-regression rule
// checkable per field.
func mergeTicketFields(prior, next TicketFields) TicketFields {
	out := prior
	overlay(&out.Title, next.Title)
	overlay(&out.Description, next.Description)
	overlay(&out.Category, next.Category)
	overlay(&out.Subcategory, next.Subcategory)
	overlay(&out.Priority, next.Priority)
	overlay(&out.Urgency, next.Urgency)
	overlay(&out.ImpactDetails, next.ImpactDetails)
	overlay(&out.TechnicalDetails, next.TechnicalDetails)
	out.UserDetails = mergeUserDetails(prior.UserDetails, next.UserDetails)
	return out
}

func mergeUserDetails(prior, next UserDetails) UserDetails {
	out := prior
	overlay(&out.Name, next.Name)
	overlay(&out.Email, next.Email)
	overlay(&out.Department, next.Department)
	overlay(&out.Location, next.Location)
	return out
}

func overlay(dst *string, src string) {
	if strings.TrimSpace(src) != "" {
		*dst = src
	}
}
