// Package containers starts throwaway backing services for integration
// tests. Everything here is behind the integration build tag.
package containers
