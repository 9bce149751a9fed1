package settings

import (
	"github.com/tariffdesk/tariffdesk/pkg/query"
	"github.com/tariffdesk/tariffdesk/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "user_settings", "s").
	Project("user_id", "UserID").
	Project("confidence_threshold", "ThresholdPercent").
	Project("updated_at", "UpdatedAt")

var defaultSort = query.SortField{
	Field: "UserID",
}

func scanSetting(s repository.Scanner) (Setting, error) {
	var setting Setting
	err := s.Scan(
		&setting.UserID,
		&setting.ThresholdPercent,
		&setting.UpdatedAt,
	)
	return setting, err
}
