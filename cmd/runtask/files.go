package main

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Manage files stored on the task runner",
}

var filesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := client.ListFiles(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(files) == 0 {
			fmt.Fprintln(out, "No files.")
			return nil
		}
		rows := make([][]string, 0, len(files))
		for _, f := range files {
			size := formatSize(f.Size)
			if f.IsDir {
				size = "dir"
			}
			rows = append(rows, []string{orDash(f.RelativePath), size, formatTime(f.ModTime)})
		}
		renderTable(out, []string{"PATH", "SIZE", "MODIFIED"}, rows)
		return nil
	},
}

var filesUploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload local files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range args {
			f, err := os.Open(name)
			if err != nil {
				return err
			}
			res, err := client.UploadFile(cmd.Context(), filepath.Base(name), f)
			f.Close()
			if err != nil {
				return err
			}
			where := res.URL
			if where == "" {
				where = res.Path
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s -> %s\n", name, where)
		}
		return nil
	},
}

var filesDownloadCmd = &cobra.Command{
	Use:   "download <path>",
	Short: "Download a stored file",
	Long: `Download fetches a stored file named by the PATH column of "files list"
or by its absolute path on the task runner. The file is written to the
current directory under its own name unless --output is given; --output -
writes to stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := client.FindFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if file == nil {
			return fmt.Errorf("no stored file %q", args[0])
		}
		remote := file.Path
		dest, _ := cmd.Flags().GetString("output")
		if dest == "" {
			dest = path.Base(remote)
		}

		if dest == "-" {
			_, err := client.DownloadFile(cmd.Context(), remote, cmd.OutOrStdout())
			return err
		}

		f, err := os.Create(dest)
		if err != nil {
			return err
		}
		n, err := client.DownloadFile(cmd.Context(), remote, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dest)
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "saved %s (%s)\n", dest, formatSize(n))
		return nil
	},
}

var filesDeleteCmd = &cobra.Command{
	Use:   "delete <relative_path>...",
	Short: "Delete stored files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, p := range args {
			if err := client.DeleteFile(cmd.Context(), p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", p)
		}
		return nil
	},
}

func init() {
	filesDownloadCmd.Flags().StringP("output", "o", "", "Destination file (- for stdout)")

	filesCmd.AddCommand(filesListCmd)
	filesCmd.AddCommand(filesUploadCmd)
	filesCmd.AddCommand(filesDownloadCmd)
	filesCmd.AddCommand(filesDeleteCmd)
}
