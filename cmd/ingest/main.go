package main

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL   string
	party       string
	countryCode string
	asyncMode   bool
)

func main() {
	root := &cobra.Command{
		Use:   "ingest",
		Short: "Upload party documents to a running em-backend server",
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9020", "base URL of the server")

	uploadCmd := &cobra.Command{
		Use:   "upload [files...]",
		Short: "Upload one or more documents for a party",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runUpload,
	}
	uploadCmd.Flags().StringVar(&party, "party", "", "party shortname (required)")
	uploadCmd.Flags().StringVar(&countryCode, "country", "", "country code (server default when empty)")
	uploadCmd.Flags().BoolVar(&asyncMode, "async", false, "enqueue for background ingestion instead of embedding inline")
	_ = uploadCmd.MarkFlagRequired("party")

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the server is reachable",
		RunE:  runHealth,
	}

	root.AddCommand(uploadCmd, healthCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runUpload(cmd *cobra.Command, args []string) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("party", party); err != nil {
		return err
	}
	if countryCode != "" {
		if err := writer.WriteField("country_code", countryCode); err != nil {
			return err
		}
	}
	if asyncMode {
		if err := writer.WriteField("async", "true"); err != nil {
			return err
		}
	}

	for _, path := range args {
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		part, err := writer.CreateFormFile("files", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, file)
		}
		_ = file.Close()
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", path, err)
		}
	}
	if err := writer.Close(); err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Post(serverURL+"/uploadfiles", writer.FormDataContentType(), &buf)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("upload failed: status %d: %s", resp.StatusCode, string(body))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %d file(s) for party %s\n", len(args), party)
	return nil
}

func runHealth(cmd *cobra.Command, _ []string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: status %d", resp.StatusCode)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Server is healthy")
	return nil
}
