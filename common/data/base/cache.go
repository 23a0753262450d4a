// Package base provides the small shared cache the handler uses to remember
// which reports were already handed to the upload queue.
package base

type Cache interface {
	Get(key string) (string, error)
	Set(key, value string) error
}
