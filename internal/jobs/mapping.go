package jobs

// ToRow maps a form to its storage shape for ownerID. Storage assigns ID and
// timestamps, so they are left zero.
func ToRow(ownerID string, f FormData) Row {
	r := Row{
		UserID:        ownerID,
		CompanyName:   f.CompanyName,
		PositionTitle: f.PositionTitle,
		Location:      f.Location,
		EmailUsed:     f.EmailUsed,
		DateApplied:   f.DateApplied,
		Source:        f.Source,
		Status:        f.Status,
		FollowUpDate:  copyDate(f.FollowUpDate),
		Notes:         f.Notes,
		CVURL:         f.CVURL,
	}
	if f.CoverLetterURL != "" {
		u := f.CoverLetterURL
		r.CoverLetterURL = &u
	}
	return r
}

// FromRow maps a stored row back to a Job.
func FromRow(r Row) Job {
	j := Job{
		ID:            r.ID,
		OwnerID:       r.UserID,
		CompanyName:   r.CompanyName,
		PositionTitle: r.PositionTitle,
		Location:      r.Location,
		EmailUsed:     r.EmailUsed,
		DateApplied:   r.DateApplied,
		Source:        r.Source,
		Status:        r.Status,
		FollowUpDate:  copyDate(r.FollowUpDate),
		Notes:         r.Notes,
		CVURL:         r.CVURL,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.CoverLetterURL != nil {
		j.CoverLetterURL = *r.CoverLetterURL
	}
	return j
}

// Form returns the editable fields of j, e.g. to prefill an edit.
func (j Job) Form() FormData {
	return FormData{
		CompanyName:    j.CompanyName,
		PositionTitle:  j.PositionTitle,
		Location:       j.Location,
		EmailUsed:      j.EmailUsed,
		DateApplied:    j.DateApplied,
		Source:         j.Source,
		Status:         j.Status,
		FollowUpDate:   copyDate(j.FollowUpDate),
		Notes:          j.Notes,
		CVURL:          j.CVURL,
		CoverLetterURL: j.CoverLetterURL,
	}
}

func copyDate(d *Date) *Date {
	if d == nil || d.IsZero() {
		return nil
	}
	cp := *d
	return &cp
}
