package parser

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fowlengine/missioncore/internal/util"
)

// MissionStart is the request to begin a session.
type MissionStart struct {
	Layout      string
	MissionName string
	Version     string
}

// ParseMissionStart parses the arguments of a mission start.
//
//	0 = layout file path
//	1 = mission name (optional, defaults to the layout file name)
func (p *Parser) ParseMissionStart(data []string) (MissionStart, error) {
	var ms MissionStart
	if err := needArgs(data, 1, "mission start"); err != nil {
		return ms, err
	}
	util.FixArgs(data)

	ms.Layout = strings.TrimSpace(data[0])
	if ms.Layout == "" {
		return ms, fmt.Errorf("%w: layout path is empty", ErrInvalidArgs)
	}
	if len(data) > 1 {
		ms.MissionName = strings.TrimSpace(data[1])
	}
	if ms.MissionName == "" {
		ms.MissionName = strings.TrimSuffix(filepath.Base(ms.Layout), filepath.Ext(ms.Layout))
	}
	ms.Version = p.version

	p.logger.Debug("Parsed mission start",
		"layout", ms.Layout,
		"missionName", ms.MissionName)

	return ms, nil
}
