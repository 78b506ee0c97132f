package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackzampolin/radlabel/internal/findings"
	"github.com/jackzampolin/radlabel/internal/records"
)

// Protocol names accepted in configuration.
const (
	ProtocolSingle   = "single"
	ProtocolTwoStage = "two-stage"
)

// Protocol is a prompting strategy. Implementations issue their calls
// through the engine, which owns pacing, retries and tracing.
type Protocol interface {
	Name() string
	Label(ctx context.Context, e *Engine, rec records.Record) (findings.LabelMap, error)
}

// ParseProtocol returns the protocol for a configuration name.
func ParseProtocol(name string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ProtocolSingle, "single-stage":
		return SingleStage(), nil
	case ProtocolTwoStage, "two_stage", "twostage", "":
		return TwoStage(), nil
	default:
		return nil, fmt.Errorf("unknown protocol %q (want %s or %s)", name, ProtocolSingle, ProtocolTwoStage)
	}
}

// ProtocolNames lists the accepted protocol names.
func ProtocolNames() []string {
	return []string{ProtocolSingle, ProtocolTwoStage}
}
