package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/tendant/catalog-uploads/pkg/uploads/auth"
	"github.com/tendant/catalog-uploads/pkg/uploads/client"
)

const usage = `Catalog upload CLI

Uploads product images the way the admin UI does: authorize, PUT straight to the
object store, verify.

USAGE:
  uploadctl <command> [options]

COMMANDS:
  upload <file>        Authorize, upload and verify an image
  verify <blob>        Verify an uploaded object (rejected objects are purged)
  read-grant <blob>    Print a presigned GET URL for an object
  token                Mint a session token (needs AUTH_JWT_SECRET)

ENVIRONMENT VARIABLES:
  UPLOAD_API_URL       API base URL (default: http://localhost:8080)
  UPLOAD_API_TOKEN     Bearer token sent to the API
  AUTH_JWT_SECRET      HS256 secret, used by the token command

  Configuration can be loaded from a .env file in the current directory.

EXAMPLES:
  uploadctl token --email=dueno@tienda.com --ttl=1h
  uploadctl upload ./silla.jpg
  uploadctl upload ./captura --content-type=image/png
  uploadctl read-grant products/1714564800000-silla.jpg
`

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(1)
	}

	command := os.Args[1]
	if command == "help" || command == "--help" || command == "-h" {
		fmt.Print(usage)
		os.Exit(0)
	}

	ctx := context.Background()
	args := os.Args[2:]

	var err error
	switch command {
	case "upload":
		err = runUpload(ctx, args)
	case "verify":
		err = runVerify(ctx, args)
	case "read-grant":
		err = runReadGrant(ctx, args)
	case "token":
		err = runToken(args)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Print(usage)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(opts ...client.Option) *client.Client {
	opts = append(opts, client.WithToken(os.Getenv("UPLOAD_API_TOKEN")))
	return client.New(getEnv("UPLOAD_API_URL", "http://localhost:8080"), opts...)
}

func runUpload(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	contentType := fs.String("content-type", "", "claimed content type (default: from the extension)")
	name := fs.String("name", "", "filename sent to the API (default: the file's base name)")
	quiet := fs.Bool("quiet", false, "no progress output")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("upload needs exactly one file")
	}
	path := fs.Arg(0)

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	filename := *name
	if filename == "" {
		filename = filepath.Base(path)
	}

	var opts []client.Option
	if !*quiet {
		total := info.Size()
		opts = append(opts, client.WithProgress(func(n int64) {
			fmt.Fprintf(os.Stderr, "\ruploading %s: %d/%d bytes", filename, n, total)
		}))
	}

	grant, err := newClient(opts...).UploadImage(ctx, filename, *contentType, f, info.Size())
	if !*quiet {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return err
	}

	return printJSON(map[string]any{
		"blobName":    grant.BlobName,
		"publicUrl":   grant.PublicURL,
		"contentType": grant.ContentType,
	})
}

func runVerify(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("verify needs exactly one blob name")
	}
	if err := newClient().Verify(ctx, args[0]); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

func runReadGrant(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("read-grant needs exactly one blob name")
	}
	grant, err := newClient().ReadGrant(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(grant)
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	email := fs.String("email", "", "token email")
	subject := fs.String("subject", "", "token subject (default: random uuid)")
	role := fs.String("role", "", "app_metadata role, e.g. admin")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	fs.Parse(args)

	secret := os.Getenv("AUTH_JWT_SECRET")
	if secret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}

	sub := *subject
	if sub == "" {
		sub = uuid.NewString()
	}

	now := time.Now()
	token, err := auth.GenerateToken(auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(*ttl)),
		},
		Email:       *email,
		AppMetadata: auth.Metadata{Role: *role},
	}, []byte(secret))
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
