package ports

import (
	"context"

	"fieldtrial/domain/core"
)

// StudyLocker serialises statistics runs on the same study
type StudyLocker interface {
	// Lock blocks until the study is free or ctx is done. The returned func unlocks.
	Lock(ctx context.Context, studyID core.ID) (unlock func(), err error)
}
