package migration

import (
	"context"
	"fmt"
	"os"

	"pipekit/internal/models"
)

// AnyType registers a post-publish hook for every task type
const AnyType = "*"

// PostPublishHook runs after a published native version has been migrated.
// path is the absolute path of the new file.
type PostPublishHook func(ctx context.Context, version *models.Version, path string) error

// PublishError is a failed post-publish hook.
type PublishError struct {
	VersionID uint   `json:"version_id"`
	Path      string `json:"path"`
	Err       error  `json:"-"`
	Message   string `json:"error"`
}

func (e PublishError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e PublishError) Unwrap() error {
	return e.Err
}

// RegisterHook adds a post-publish hook for tasks of the named type.
func (t *Tool) RegisterHook(typeName string, hook PostPublishHook) {
	if t.Hooks == nil {
		t.Hooks = map[string][]PostPublishHook{}
	}
	t.Hooks[typeName] = append(t.Hooks[typeName], hook)
}

func (t *Tool) hooksFor(typeName string) []PostPublishHook {
	hooks := append([]PostPublishHook{}, t.Hooks[typeName]...)
	if typeName != AnyType {
		hooks = append(hooks, t.Hooks[AnyType]...)
	}
	return hooks
}

// runHook turns hook panics into errors.
func runHook(ctx context.Context, hook PostPublishHook, v *models.Version, path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("post-publish hook panicked: %v", r)
		}
	}()
	return hook(ctx, v, path)
}

// FileIntegrityHook fails when the published file is missing or empty.
func FileIntegrityHook() PostPublishHook {
	return func(_ context.Context, v *models.Version, path string) error {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("published file of version %d: %w", v.ID, err)
		}
		if info.IsDir() {
			return fmt.Errorf("published file of version %d is a directory", v.ID)
		}
		if info.Size() == 0 {
			return fmt.Errorf("published file of version %d is empty", v.ID)
		}
		return nil
	}
}
