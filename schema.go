package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
)

// wireCatalog lists every message body by its envelope type
type wireCatalog struct {
	Create      CreateMsg      `json:"create"`
	Reset       ResetMsg       `json:"reset"`
	Step        StepMsg        `json:"step"`
	Manual      ManualMsg      `json:"manual"`
	Watch       WatchMsg       `json:"watch"`
	Check       CheckMsg       `json:"check"`
	Register    RegisterMsg    `json:"register"`
	Login       LoginMsg       `json:"login"`
	Auth        AuthMsg        `json:"auth"`
	Leaderboard LeaderboardMsg `json:"leaderboard"`

	Created         CreatedMsg         `json:"created"`
	Obs             ObsMsg             `json:"obs"`
	StepResult      StepResultMsg      `json:"step_result"`
	Frame           FrameMsg           `json:"frame"`
	Episode         EpisodeMsg         `json:"episode"`
	Sessions        []SessionInfo      `json:"sessions"`
	Checked         CheckedMsg         `json:"checked"`
	Error           ErrorMsg           `json:"error"`
	AuthOK          AuthOKMsg          `json:"auth_ok"`
	ProfileData     ProfileDataMsg     `json:"profile_data"`
	LeaderboardData []LeaderboardEntry `json:"leaderboard_data"`
	Unlocked        UnlockedMsg        `json:"unlocked"`
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(new(wireCatalog))
	schema.Title = "Turret env wire protocol"
	schema.Description = "Bodies of the {\"t\", \"d\"} envelopes exchanged over /ws, keyed by envelope type"
	return schema
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal schema")
	}
	data = append(data, '\n')

	if outPath == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return errors.Wrap(err, "create schema directory")
	}
	tmpPath := outPath + "." + GenerateID(4) + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return errors.Wrap(err, "write temp schema")
	}
	return errors.Wrap(os.Rename(tmpPath, outPath), "replace schema")
}
