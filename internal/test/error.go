package test

import "testing"

// AssertError fails the test if the error string of err is not wantErr
// An empty wantErr means no error
func AssertError(t *testing.T, err error, wantErr string) {
	t.Helper()
	gv := ""
	if err != nil {
		gv = err.Error()
	}
	if wantErr != gv {
		if wantErr == "" {
			wantErr = "empty string"
		}
		t.Fatalf("Errors not equal, got: %v, want: %v", gv, wantErr)
	}
}
