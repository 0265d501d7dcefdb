package main

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"
)

// Generates a random API key for the engine. Keys are not stored anywhere;
// add the printed value to the comma-separated API_KEYS environment variable.
func main() {
	// Character set: uppercase letters, lowercase letters, and numbers
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	const keyLength = 32

	// Use rejection sampling to avoid modulo bias: only accept bytes below the
	// largest multiple of the charset length that fits in 0-255.
	charsetLen := len(charset)
	maxValidByte := byte((255 / charsetLen) * charsetLen)

	apiKeyBytes := make([]byte, keyLength)
	randomByte := make([]byte, 1)
	for i := range apiKeyBytes {
		for {
			if _, err := rand.Read(randomByte); err != nil {
				slog.Error("Failed to generate random API key", "error", err)
				os.Exit(1)
			}
			if randomByte[0] < maxValidByte {
				apiKeyBytes[i] = charset[int(randomByte[0])%charsetLen]
				break
			}
		}
	}

	apiKey := string(apiKeyBytes)

	fmt.Println("✓ API key generated!")
	fmt.Println()
	fmt.Println("API Key (use this in your requests):", apiKey)
	fmt.Println()
	fmt.Println("Add it to the server's API_KEYS environment variable (comma-separated).")
	fmt.Println()
	fmt.Println("Example curl commands:")
	fmt.Println()
	fmt.Printf("# Index a photo\n")
	fmt.Printf("curl -X POST -H \"X-API-Key: %s\" \\\n", apiKey)
	fmt.Printf("  -F photo_id=photo-1 -F session_id=wedding-2024 -F file=@photo.jpg \\\n")
	fmt.Printf("  http://localhost:8080/v1/index\n")
	fmt.Println()
	fmt.Printf("# Search a session\n")
	fmt.Printf("curl -X POST -H \"X-API-Key: %s\" \\\n", apiKey)
	fmt.Printf("  -F session_id=wedding-2024 -F file=@selfie.jpg -F threshold=0.6 \\\n")
	fmt.Printf("  http://localhost:8080/v1/search\n")
}
