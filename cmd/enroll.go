package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/camden-git/faceattendance/media"
	"github.com/camden-git/faceattendance/repository"
)

var enrollRoll string

var enrollCmd = &cobra.Command{
	Use:   "enroll DIR",
	Short: "Enroll a student from a directory of photos",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := listPhotos(args[0])
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return fmt.Errorf("no photos found in %s", args[0])
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		student, err := repository.NewStudentRepository(a.db).GetByRollNumber(cmd.Context(), enrollRoll)
		if err != nil {
			return fmt.Errorf("student %s: %w", enrollRoll, err)
		}

		bar := progressbar.NewOptions(len(paths),
			progressbar.OptionSetDescription("Reading photos"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)
		raw := make([][]byte, 0, len(paths))
		for _, p := range paths {
			data, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", p, err)
			}
			raw = append(raw, data)
			bar.Add(1)
		}
		bar.Finish()
		fmt.Fprintln(os.Stderr)

		models, err := a.loadModels()
		if err != nil {
			return err
		}

		report, err := a.enrollmentPipeline(models).EnrollUploads(cmd.Context(), student.Identity(), raw)
		for _, rej := range report.Rejected {
			if rej.Index >= 0 && rej.Index < len(paths) {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", filepath.Base(paths[rej.Index]), rej.Diagnostic)
			}
		}
		if err != nil {
			return err
		}
		fmt.Printf("Enrolled %s: %d embeddings stored from %d photos\n", student.RollNumber, report.Stored, report.PhotosProvided)
		return nil
	},
}

// listPhotos returns the raster images directly inside dir, sorted by name.
func listPhotos(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !media.IsRasterImage(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func init() {
	enrollCmd.Flags().StringVar(&enrollRoll, "roll-number", "", "Roll number of the student to enroll")
	enrollCmd.MarkFlagRequired("roll-number")
	rootCmd.AddCommand(enrollCmd)
}
