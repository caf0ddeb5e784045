//go:build !unix

package platform

// release is not available outside unix hosts
func release() string {
	return ""
}
