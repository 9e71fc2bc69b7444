package execution

import (
	"trading-bot-backend/internal/core"
)

const reasonLiveUnavailable = "live trading unavailable: credentials not configured"

// Gate decides whether a trade may reach the exchange. Capability is fixed
// at construction: credentials present and a client built from them.
type Gate struct {
	liveCapable bool
}

type Authorization struct {
	Mode core.Mode
}

func NewGate(liveCapable bool) *Gate {
	return &Gate{liveCapable: liveCapable}
}

func (g *Gate) CanExecuteLive() bool {
	return g != nil && g.liveCapable
}

func (g *Gate) Authorize(req core.TradeRequest) (Authorization, error) {
	switch req.Mode {
	case core.ModePaper:
		return Authorization{Mode: core.ModePaper}, nil
	case core.ModeLive:
		if !g.CanExecuteLive() {
			return Authorization{}, &core.GateRejectedError{Mode: req.Mode, Reason: reasonLiveUnavailable}
		}
		return Authorization{Mode: core.ModeLive}, nil
	}
	return Authorization{}, &core.GateRejectedError{Mode: req.Mode, Reason: "unknown mode"}
}
