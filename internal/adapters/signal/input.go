package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/avdeyev/gamecast/internal/core"
	"github.com/avdeyev/gamecast/internal/domain"
)

func (ctl *Controller) handleInput(id domain.ConnID, data []byte) {
	var p Input
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad input payload")
		return
	}
	ctl.Inputs.RouteButton(id, domain.ButtonEvent{Button: p.Button, Pressed: p.Pressed}, core.Frame(data))
}

func (ctl *Controller) handleInputAnalog(id domain.ConnID, data []byte) {
	var p InputAnalog
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad input payload")
		return
	}
	ctl.Inputs.RouteAnalog(id, domain.AnalogEvent{Stick: p.Stick, X: p.X, Y: p.Y}, core.Frame(data))
}
