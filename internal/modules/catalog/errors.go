package catalog

import "errors"

var (
	ErrPlanNotFound       = errors.New("plan not found")
	ErrPlanMappingMissing = errors.New("plan has no provider plan mapping")
)
