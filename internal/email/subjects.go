package email

const (
	subjectQualifyingFmt = "[Qualifying Lead] %s - %s"
	unknownCompany       = "Unknown"
)
