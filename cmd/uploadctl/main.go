// uploadctl uploads a file to the terraplan object store through the upload
// API: small files via one presigned PUT, large files via the multipart
// protocol with parallel part uploads.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/terravista/terraplan/internal/client/uploader"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

func promptAPIKey() (string, error) {
	fmt.Print("API key: ")
	key, err := readPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(key), nil
}

func main() {
	var (
		serverURL   = flag.String("s", "http://127.0.0.1:8080", "server base URL")
		apiKey      = flag.String("k", "", "API key (prompted when omitted)")
		key         = flag.String("key", "", "target object key (generated when omitted)")
		contentType = flag.String("ct", "", "declared content type")
		milestoneID = flag.String("m", "", "milestone to attach the file record to")
		name        = flag.String("n", "", "display name for the file record")
		partSize    = flag.Int64("part-size", uploader.DefaultPartSize, "part size in bytes")
		parallel    = flag.Int("j", uploader.DefaultParallel, "concurrent part uploads")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: uploadctl [flags] <file>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	secret := *apiKey
	if secret == "" {
		var err error
		secret, err = promptAPIKey()
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading api key: %v\n", err)
			os.Exit(1)
		}
	}

	client := &uploader.Client{
		BaseURL:  *serverURL,
		APIKey:   secret,
		PartSize: *partSize,
		Parallel: *parallel,
	}

	result, err := client.UploadFile(context.Background(), flag.Arg(0), uploader.Options{
		Key:         *key,
		ContentType: *contentType,
		MilestoneID: *milestoneID,
		Name:        *name,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "upload failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("uploaded %s\n", result.Key)
	if result.Location != "" {
		fmt.Printf("location: %s\n", result.Location)
	}
}
