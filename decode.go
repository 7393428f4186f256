package httptap

import (
	"strings"

	"github.com/bytedance/sonic"
)

// textualMarkers are the content type fragments treated as textual on top of
// the text/ prefix.
var textualMarkers = []string{
	"json",
	"xml",
	"x-www-form-urlencoded",
	"graphql",
	"javascript",
	"yaml",
}

// textualContentType reports whether a Content-Type header value describes a
// payload that can be decoded to text. Multipart payloads are never textual,
// regardless of any marker their parameters may contain.
func textualContentType(contentType string) bool {
	ct := strings.ToLower(contentType)
	if ct == "" {
		return false
	}
	if strings.HasPrefix(ct, "multipart/") {
		return false
	}
	if strings.HasPrefix(ct, "text/") {
		return true
	}
	for _, marker := range textualMarkers {
		if strings.Contains(ct, marker) {
			return true
		}
	}
	return false
}

// decodeText decodes body to text when its content type is textual. Invalid
// UTF-8 sequences are replaced with U+FFFD, so decoding cannot fail. Returns
// nil for empty or non-textual payloads.
func decodeText(body []byte, contentType string) *string {
	if len(body) == 0 || !textualContentType(contentType) {
		return nil
	}
	return ptr(strings.ToValidUTF8(string(body), "�"))
}

// rpcEnvelope is the minimal JSON-RPC 2.0 shape needed to label a call.
type rpcEnvelope struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
}

// rpcMethod extracts the method name from a JSON-RPC 2.0 call body. Returns
// the empty string when the body is not such a call.
func rpcMethod(body []byte) string {
	var env rpcEnvelope
	if err := sonic.Unmarshal(body, &env); err != nil {
		return ""
	}
	if env.JSONRPC != "2.0" {
		return ""
	}
	return env.Method
}
