package invenzi

// The W-Access API uses PascalCase JSON field names throughout.

// Cardholder states understood by the platform.
const (
	CHStateActive   = 0
	CHStateInactive = 1
)

// Cardholder is a W-Access cardholder record.
type Cardholder struct {
	CHID        int64  `json:"CHID,omitempty"`
	PartitionID int    `json:"PartitionID"`
	CHType      int    `json:"CHType"`
	CHState     int    `json:"CHState"`
	FirstName   string `json:"FirstName"`
	LastName    string `json:"LastName,omitempty"`
	IDNumber    string `json:"IdNumber"`
	CompanyID   int    `json:"CompanyID,omitempty"`

	CHStartValidityDateTime string `json:"CHStartValidityDateTime,omitempty"`
	CHEndValidityDateTime   string `json:"CHEndValidityDateTime,omitempty"`

	// Site-specific auxiliary fields (registry number, role, regime, ...).
	AuxText01 string `json:"AuxText01,omitempty"`
	AuxText02 string `json:"AuxText02,omitempty"`
	AuxText03 string `json:"AuxText03,omitempty"`
	AuxText04 string `json:"AuxText04,omitempty"`
	AuxText05 string `json:"AuxText05,omitempty"`
	AuxText06 string `json:"AuxText06,omitempty"`
	AuxText07 string `json:"AuxText07,omitempty"`

	Cards          []Card        `json:"Cards,omitempty"`
	CHAccessLevels []AccessLevel `json:"CHAccessLevels,omitempty"`
}

// Card is a W-Access credential.
type Card struct {
	CardID       int64  `json:"CardID,omitempty"`
	CardNumber   int    `json:"CardNumber"`
	FacilityCode int    `json:"FacilityCode"`
	ClearCode    string `json:"ClearCode,omitempty"`
	CardType     int    `json:"CardType"`
	CardState    int    `json:"CardState"`
	PartitionID  int    `json:"PartitionID"`

	CardStartValidityDateTime string `json:"CardStartValidityDateTime,omitempty"`
	CardEndValidityDateTime   string `json:"CardEndValidityDateTime,omitempty"`
}

// AccessLevel is a W-Access access level assignment.
type AccessLevel struct {
	AccessLevelID int `json:"AccessLevelID"`
}

// AccessLevelIDs extracts the IDs currently assigned to a cardholder.
func (c *Cardholder) AccessLevelIDs() []int {
	ids := make([]int, 0, len(c.CHAccessLevels))
	for _, al := range c.CHAccessLevels {
		ids = append(ids, al.AccessLevelID)
	}

	return ids
}
