package apiclient

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPError_ErrorFormat(t *testing.T) {
	err := &HTTPError{Status: 409, Message: "User already exists"}

	want := "[409] User already exists"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestNetworkError_UnwrapsUnderlyingError(t *testing.T) {
	underlying := errors.New("connection refused")
	err := &NetworkError{Method: "GET", URL: "http://localhost:8080/me", Err: underlying}

	if !errors.Is(err, underlying) {
		t.Error("NetworkError は下位エラーをUnwrapできるべき")
	}
}

func TestAsHTTPError_WrappedError(t *testing.T) {
	inner := &HTTPError{Status: 404, Message: "Issue not found"}
	wrapped := fmt.Errorf("課題の取得に失敗しました: %w", inner)

	he, ok := AsHTTPError(wrapped)
	if !ok {
		t.Fatal("ラップされたHTTPErrorを取り出せるべき")
	}
	if he.Status != 404 {
		t.Errorf("Status = %d, want 404", he.Status)
	}
}

func TestAsHTTPError_NonHTTPError(t *testing.T) {
	_, ok := AsHTTPError(errors.New("plain error"))
	if ok {
		t.Error("HTTPError以外でtrueを返してはならない")
	}
}

func TestIsNetworkError(t *testing.T) {
	ne := &NetworkError{Method: "POST", URL: "http://x", Err: errors.New("dns failure")}
	if !IsNetworkError(ne) {
		t.Error("IsNetworkError(NetworkError) = false, want true")
	}
	if IsNetworkError(&HTTPError{Status: 500, Message: "HTTP 500"}) {
		t.Error("IsNetworkError(HTTPError) = true, want false")
	}
	if IsNetworkError(nil) {
		t.Error("IsNetworkError(nil) = true, want false")
	}
}

func TestIsStatus(t *testing.T) {
	err := &HTTPError{Status: http.StatusUnauthorized, Message: "Authentication required"}

	if !IsStatus(err, http.StatusUnauthorized) {
		t.Error("IsStatus(401エラー, 401) = false, want true")
	}
	if IsStatus(err, http.StatusNotFound) {
		t.Error("IsStatus(401エラー, 404) = true, want false")
	}
	if IsStatus(errors.New("plain"), http.StatusUnauthorized) {
		t.Error("IsStatus(非HTTPError, 401) = true, want false")
	}
}
