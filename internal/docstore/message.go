package docstore

import (
	"encoding/base64"
	"strings"
)

// The commit message is the sole durability record of changeset
// signatures; its format is stable.
//
//	<title>
//
//	<description lines>
//	Hash:         <hash-tag>
//	Key-ID:       <fingerprint>
//
//	-----BEGIN SIGNATURE-----
//	<base64 signature lines>
//	-----END SIGNATURE-----
const (
	signatureHeader = "-----BEGIN SIGNATURE-----"
	signatureFooter = "-----END SIGNATURE-----"
	sigLineLength   = 64
)

// BuildMessage renders the structured commit message for a changeset.
func BuildMessage(title, description, hashTag, fingerprint string, signature []byte) string {
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\n")
	if description != "" {
		b.WriteString(description)
		b.WriteString("\n")
	}
	b.WriteString("Hash:         " + hashTag + "\n")
	b.WriteString("Key-ID:       " + fingerprint + "\n\n")
	b.WriteString(signatureHeader + "\n")

	enc := base64.StdEncoding.EncodeToString(signature)
	for len(enc) > sigLineLength {
		b.WriteString(enc[:sigLineLength] + "\n")
		enc = enc[sigLineLength:]
	}
	if enc != "" {
		b.WriteString(enc + "\n")
	}
	b.WriteString(signatureFooter + "\n")
	return b.String()
}

// ExtractSignature recovers the detached signature bytes from a commit
// message, or nil when the message carries no signature block.
func ExtractSignature(message string) []byte {
	start := strings.Index(message, signatureHeader)
	end := strings.Index(message, signatureFooter)
	if start < 0 || end < 0 || end < start {
		return nil
	}
	body := message[start+len(signatureHeader) : end]
	body = strings.ReplaceAll(body, "\n", "")
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(body))
	if err != nil {
		return nil
	}
	return sig
}
