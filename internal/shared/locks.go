package shared

import "fmt"

// TaskLockKey builds redis keys guarding singleton background tasks.
func TaskLockKey(task string) string {
	return fmt.Sprintf("jobs:%s:lock", task)
}
