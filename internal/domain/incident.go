package domain

import (
	"net"
	"time"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity is valid.
func (s Severity) IsValid() bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh || s == SeverityCritical
}

type IncidentStatus string

const (
	StatusOpen          IncidentStatus = "open"
	StatusInvestigating IncidentStatus = "investigating"
	StatusContained     IncidentStatus = "contained"
	StatusResolved      IncidentStatus = "resolved"
	StatusClosed        IncidentStatus = "closed"
)

// IsValid checks if the status is valid.
func (s IncidentStatus) IsValid() bool {
	switch s {
	case StatusOpen, StatusInvestigating, StatusContained, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// IsTerminal reports whether the status closes out the incident.
// Transitions into a terminal status stamp ResolvedAt.
func (s IncidentStatus) IsTerminal() bool {
	return s == StatusResolved || s == StatusClosed
}

type Category string

const (
	CategoryMalware           Category = "malware"
	CategoryPhishing          Category = "phishing"
	CategoryDataBreach        Category = "data_breach"
	CategoryDDoS              Category = "ddos"
	CategoryInsiderThreat     Category = "insider_threat"
	CategoryPhysicalSecurity  Category = "physical_security"
	CategoryNetworkIntrusion  Category = "network_intrusion"
	CategoryWebApplication    Category = "web_application"
	CategorySocialEngineering Category = "social_engineering"
	CategoryOther             Category = "other"
)

// IsValid checks if the category is valid.
func (c Category) IsValid() bool {
	switch c {
	case CategoryMalware, CategoryPhishing, CategoryDataBreach, CategoryDDoS,
		CategoryInsiderThreat, CategoryPhysicalSecurity, CategoryNetworkIntrusion,
		CategoryWebApplication, CategorySocialEngineering, CategoryOther:
		return true
	}
	return false
}

type IncidentSource string

const (
	SourceManual     IncidentSource = "manual"
	SourceAutomated  IncidentSource = "automated"
	SourceExternal   IncidentSource = "external"
	SourceUserReport IncidentSource = "user_report"
)

// IsValid checks if the source is valid.
func (s IncidentSource) IsValid() bool {
	switch s {
	case SourceManual, SourceAutomated, SourceExternal, SourceUserReport:
		return true
	}
	return false
}

type Impact string

const (
	ImpactMinimal  Impact = "minimal"
	ImpactMinor    Impact = "minor"
	ImpactModerate Impact = "moderate"
	ImpactMajor    Impact = "major"
	ImpactSevere   Impact = "severe"
)

// IsValid checks if the estimated impact is valid.
func (i Impact) IsValid() bool {
	switch i {
	case ImpactMinimal, ImpactMinor, ImpactModerate, ImpactMajor, ImpactSevere:
		return true
	}
	return false
}

// Location describes where an incident originated.
type Location struct {
	Country     string       `json:"country,omitempty"`
	City        string       `json:"city,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// FinancialImpact is an optional estimated monetary loss.
type FinancialImpact struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// Evidence is an attachment descriptor collected during investigation.
type Evidence struct {
	Type        string    `json:"type"`
	Filename    string    `json:"filename,omitempty"`
	Description string    `json:"description,omitempty"`
	URL         string    `json:"url,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// TimelineEntry is an append-only audit record on an incident.
type TimelineEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	Action      string    `json:"action"`
	Description string    `json:"description,omitempty"`
	User        string    `json:"user,omitempty"`
}

// Timeline actions.
const (
	TimelineActionCreated       = "incident_created"
	TimelineActionStatusChanged = "status_changed"
)

// Note is an analyst comment on an incident.
type Note struct {
	Content   string    `json:"content"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	IsPrivate bool      `json:"isPrivate"`
}

// Compliance marks which regulations an incident touches.
type Compliance struct {
	GDPR  bool `json:"gdpr"`
	SOX   bool `json:"sox"`
	PCI   bool `json:"pci"`
	HIPAA bool `json:"hipaa"`
}

// Incident is a recorded security event tracked through a status lifecycle.
type Incident struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	Severity         Severity         `json:"severity"`
	Status           IncidentStatus   `json:"status"`
	Category         Category         `json:"category"`
	Source           IncidentSource   `json:"source"`
	AffectedSystems  []string         `json:"affectedSystems"`
	AffectedUsers    []string         `json:"affectedUsers"`
	IPAddresses      []string         `json:"ipAddresses"`
	Location         *Location        `json:"location,omitempty"`
	DetectedAt       time.Time        `json:"detectedAt"`
	ReportedAt       time.Time        `json:"reportedAt"`
	ResolvedAt       *time.Time       `json:"resolvedAt,omitempty"`
	EstimatedImpact  Impact           `json:"estimatedImpact"`
	FinancialImpact  *FinancialImpact `json:"financialImpact,omitempty"`
	AssignedTo       string           `json:"assignedTo,omitempty"`
	CreatedBy        string           `json:"createdBy"`
	UpdatedBy        string           `json:"updatedBy,omitempty"`
	Tags             []string         `json:"tags"`
	Evidence         []Evidence       `json:"evidence"`
	Timeline         []TimelineEntry  `json:"timeline"`
	Notes            []Note           `json:"notes"`
	RelatedIncidents []string         `json:"relatedIncidents"`
	Compliance       Compliance       `json:"compliance"`
	LessonsLearned   string           `json:"lessonsLearned,omitempty"`
	Recommendations  []string         `json:"recommendations"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// Duration returns how long the incident has been (or was) open,
// measured from detection. Computed on read, never stored.
func (i *Incident) Duration(now time.Time) time.Duration {
	if i.ResolvedAt != nil {
		return i.ResolvedAt.Sub(i.DetectedAt)
	}
	return now.Sub(i.DetectedAt)
}

// IsResolved reports whether the incident reached a terminal status.
func (i *Incident) IsResolved() bool {
	return i.Status.IsTerminal()
}

// IsValidIPv4 checks if s is a well-formed dotted-quad IPv4 address.
func IsValidIPv4(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() != nil
}
