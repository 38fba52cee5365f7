package cmn

import "github.com/teris-io/shortid"

// NodeID, LinkID, FileID, TransferID, FlowID, and ReservationID are
// distinct named types so call sites never confuse one kind of handle for
// another (spec §9: "references between entities are IDs, not pointers").
type (
	NodeID        string
	LinkID        string
	FileID        string
	TransferID    string
	FlowID        string
	ReservationID string
)

// IDGen produces deterministic, seeded short IDs so that two runs with an
// identical Config.Seed emit bit-identical identifiers (invariant #4).
type IDGen struct {
	sid *shortid.Shortid
}

// NewIDGen builds an IDGen seeded from cfg.Seed.
func NewIDGen(seed int64) *IDGen {
	sid, err := shortid.New(1, shortid.DefaultABC, uint64(seed))
	if err != nil {
		// shortid.New only fails on a bad worker id/abc, both fixed here.
		panic("cloudsim: shortid.New: " + err.Error())
	}
	return &IDGen{sid: sid}
}

func (g *IDGen) next(prefix string) string {
	s, err := g.sid.Generate()
	if err != nil {
		panic("cloudsim: shortid.Generate: " + err.Error())
	}
	return prefix + "-" + s
}

func (g *IDGen) NodeID() NodeID               { return NodeID(g.next("node")) }
func (g *IDGen) LinkID() LinkID               { return LinkID(g.next("link")) }
func (g *IDGen) TransferID() TransferID       { return TransferID(g.next("xfer")) }
func (g *IDGen) FlowID() FlowID               { return FlowID(g.next("flow")) }
func (g *IDGen) ReservationID() ReservationID { return ReservationID(g.next("rsv")) }
