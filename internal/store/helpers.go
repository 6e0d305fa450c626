package store

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/risk-dashboard/internal/model"
)

func modelStatus(s string) model.LoadStatus {
	return model.LoadStatus(s)
}

func unmarshalSources(raw string, r *RunLog) error {
	if raw == "" || raw == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &r.Sources); err != nil {
		return eris.Wrapf(err, "store: unmarshal sources for run %s", r.ID)
	}
	return nil
}
