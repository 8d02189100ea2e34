package observerproto

// Version is the observer protocol version.
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeTick      = "TICK"
)

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// EveryTicks thins the stream to one TICK per N ticks (1 = every tick).
	EveryTicks int `json:"every_ticks"`
	// IncludeField controls whether crystal/pet/claim lists are sent; tier and coins always are.
	IncludeField bool `json:"include_field"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	FieldID         string      `json:"field_id"`
	Tick            uint64      `json:"tick"`
	FieldParams     FieldParams `json:"field_params"`
	Progression     Progression `json:"progression"`
}

type FieldParams struct {
	TickRateHz    int     `json:"tick_rate_hz"`
	Seed          int64   `json:"seed"`
	Radius        float64 `json:"radius"`
	CrystalTarget int     `json:"crystal_target"`
}

type Progression struct {
	Tier        int     `json:"tier"`
	Capacity    float64 `json:"capacity"`
	UpgradeCost int64   `json:"upgrade_cost"`
	MaxTier     int     `json:"max_tier,omitempty"`
}

// Server -> Client. Sent every tick (or every N ticks per subscription).
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`

	Progression Progression `json:"progression"`
	Coins       int64       `json:"coins"`

	Crystals []CrystalState `json:"crystals,omitempty"`
	Pets     []PetState     `json:"pets,omitempty"`
	Claims   []ClaimState   `json:"claims,omitempty"`

	Events []Event `json:"events,omitempty"`
}

type CrystalState struct {
	ID    string     `json:"id"`
	Pos   [3]float64 `json:"pos"`
	HP    float64    `json:"hp"`
	MaxHP float64    `json:"max_hp"`
}

type PetState struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Pos      [3]float64 `json:"pos"`
	TargetID string     `json:"target_id,omitempty"`
	Harvest  float64    `json:"harvested"`
}

type ClaimState struct {
	CrystalID string `json:"crystal_id"`
	PetID     string `json:"pet_id"`
}

// Event kinds: TIER_CHANGED, CRYSTAL_SPAWNED, CRYSTAL_DEPLETED, PET_JOINED, PET_LEFT.
type Event struct {
	Kind      string  `json:"kind"`
	CrystalID string  `json:"crystal_id,omitempty"`
	PetID     string  `json:"pet_id,omitempty"`
	Tier      int     `json:"tier,omitempty"`
	PrevTier  int     `json:"prev_tier,omitempty"`
	Capacity  float64 `json:"capacity,omitempty"`
	Cost      int64   `json:"cost,omitempty"`
	Upgraded  bool    `json:"upgraded,omitempty"`
	Abrupt    bool    `json:"abrupt,omitempty"`
}
