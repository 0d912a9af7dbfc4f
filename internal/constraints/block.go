package constraints

// DoctorExcluded reports whether a candidate doctor name is excluded by this
// block, honoring morphological and fuzzy matching (see ExcludesDoctor).
func (b *Block) DoctorExcluded(candidate string) bool {
	if b == nil || candidate == "" {
		return false
	}
	return ExcludesDoctor(candidate, b.ExcludedDoctors)
}

// ServiceExcluded reports whether a candidate service name is excluded.
func (b *Block) ServiceExcluded(candidate string) bool {
	if b == nil || candidate == "" {
		return false
	}
	return ExcludesService(candidate, b.ExcludedServices)
}

// ConflictsWithDesiredService reports whether candidate contradicts a
// previously bound desired service (hard-block territory: the patient named
// a different service than the one they're now asking the tool to use).
func (b *Block) ConflictsWithDesiredService(candidate string) bool {
	if b == nil || b.DesiredService == "" || candidate == "" {
		return false
	}
	return levenshtein(normalize(candidate), normalize(b.DesiredService)) > 1
}
