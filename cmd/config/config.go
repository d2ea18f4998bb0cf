package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/mcstage/cmd/util"
	"github.com/sidkik/mcstage/pkg/config"
	"github.com/sidkik/mcstage/pkg/errors"
	"github.com/sidkik/mcstage/pkg/sync"
)

// Mocked for unit testing.
var (
	stdout          io.Writer = os.Stdout
	stdin           io.Reader = os.Stdin
	guessDefaults             = guessDefaultsImpl
	parseUserConfig           = config.ParseUser
	getHomeDir                = homedir.Dir
	getCurrentUser            = user.Current
)

// New creates a new `config` command.
func New() *cobra.Command {
	var cliOpts config.User
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Setup the mcstage user configuration",
		Run: func(_ *cobra.Command, _ []string) {
			if err := SetupConfig(cliOpts); err != nil {
				err = errors.NewFriendlyError("Failed to setup configuration:\n%s", err)
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&cliOpts.Store.Type, "store-type", "",
		"Set the store type (local or s3) in the config. "+
			"Optional: If not set, `mcstage config` will interactively prompt.")
	cmd.Flags().StringVar(&cliOpts.Store.Path, "store-path", "",
		"Set the store directory for local stores. "+
			"Optional: If not set, `mcstage config` will interactively prompt.")
	cmd.Flags().StringVar(&cliOpts.Store.Endpoint, "endpoint", "",
		"Set the endpoint (host:port) for S3 stores. "+
			"Optional: If not set, `mcstage config` will interactively prompt.")
	cmd.Flags().StringVar(&cliOpts.Store.Bucket, "bucket", "",
		"Set the bucket for S3 stores. "+
			"Optional: If not set, `mcstage config` will interactively prompt.")
	cmd.Flags().StringVar(&cliOpts.Store.Region, "region", "", "Set the region for S3 stores.")
	cmd.Flags().StringVar(&cliOpts.Store.AccessKey, "access-key", "", "Set the access key for S3 stores.")
	cmd.Flags().StringVar(&cliOpts.Store.SecretKey, "secret-key", "", "Set the secret key for S3 stores.")
	cmd.Flags().BoolVar(&cliOpts.Store.UseSSL, "use-ssl", false, "Connect to S3 stores over TLS.")
	cmd.Flags().Int64Var(&cliOpts.LargeFileThreshold, "large-file-threshold", 0,
		"Files larger than this many bytes are uploaded with a progress display.")
	cmd.Flags().StringVar(&cliOpts.OnUnknown, "on-unknown", "",
		"What to do when a stored file has diverged from the local copy: skip, upload, or fail.")

	// Setup the commands for querying the contents of the user config.
	type getterSpec struct {
		use, short string
		fn         func(config.User) string
	}

	getters := []getterSpec{
		{
			use:   "get-store",
			short: "Get the currently configured artifact store",
			fn:    storeString,
		},
		{
			use:   "get-on-unknown",
			short: "Get what happens to stored files that have diverged from the local copy",
			fn: func(cfg config.User) string {
				if cfg.OnUnknown == "" {
					return string(sync.SkipUnknown)
				}
				return cfg.OnUnknown
			},
		},
	}
	for _, getter := range getters {
		getter := getter
		cmd.AddCommand(&cobra.Command{
			Use:   getter.use,
			Short: getter.short,
			Run: func(_ *cobra.Command, _ []string) {
				cfg, err := parseUserConfig()
				if err != nil {
					err = errors.WithContext(err, "read config")
					util.HandleFatalError(err)
				}

				fmt.Fprintln(stdout, getter.fn(cfg))
			},
		})
	}

	return cmd
}

func storeString(cfg config.User) string {
	if cfg.Store.Type == config.S3Store {
		return fmt.Sprintf("s3 %s/%s", cfg.Store.Endpoint, cfg.Store.Bucket)
	}
	return fmt.Sprintf("%s %s", cfg.Store.Type, cfg.Store.Path)
}

func SetupConfig(cliOpts config.User) error {
	if _, err := sync.ParseUnknownPolicy(cliOpts.OnUnknown); err != nil {
		return err
	}

	cfg, err := generateConfig(cliOpts)
	if err != nil {
		return errors.WithContext(err, "generate config")
	}

	if err := cfg.Store.Validate(); err != nil {
		return errors.WithContext(err, "validate store")
	}

	if err := config.WriteUser(cfg); err != nil {
		return errors.WithContext(err, "write config")
	}

	path, err := config.GetUserConfigPath()
	if err != nil {
		return errors.WithContext(err, "get user config path")
	}

	fmt.Fprintf(stdout, "Wrote config to %s\n", path)
	return nil
}

func storeTypeValidationFn(storeType string) (string, bool) {
	if storeType == config.LocalStore || storeType == config.S3Store {
		return "", true
	}
	return fmt.Sprintf("The store type must be either %q or %q.",
		config.LocalStore, config.S3Store), false
}

func bucketValidationFn(bucket string) (string, bool) {
	// Ensure compliance with the S3 bucket naming rules.
	// 1) Must be lowercase alphanumeric.
	// 2) The `-` character can also be used in any interior character
	//    of the string.
	// 3) Between 3 and 63 characters.
	minLen, maxLen := 3, 63

	if len(bucket) < minLen || len(bucket) > maxLen {
		return "The bucket name must be between 3 and 63 characters. " +
			"Please pick another bucket.", false
	}

	re := regexp.MustCompile(`^[-a-z0-9]*$`)
	if !strings.HasPrefix(bucket, "-") && !strings.HasSuffix(bucket, "-") &&
		re.MatchString(bucket) {
		return "", true
	}

	return "This bucket name contains invalid characters. " +
		"Please pick another bucket that only " +
		"uses the following characters:\n" +
		"1) lowercase letters (a-z) \n" +
		"2) numbers (0-9) \n" +
		"3) - \n" +
		"Please ensure that your chosen bucket " +
		"does not start or end with the `-` character.", false
}

type prompt struct {
	helpString, prompt, defaultAnswer, currAnswer string
	field                                         *string
	validationFn                                  func(string) (string, bool)
}

// generateConfig interacts with the user to decide what the user's desired
// configuration is.
// It makes best guesses at reasonable defaults, and allows users to explicitly
// override them if desired.
func generateConfig(cliOpts config.User) (config.User, error) {
	defaults := guessDefaults()
	currConfig, err := parseUserConfig()
	if err != nil {
		currConfig = config.User{}
		log.WithError(err).Debug("Failed to read current config")
	}

	cfg := cliOpts
	if cliOpts.Store.Type == "" {
		err := runPrompts([]prompt{{
			helpString: "Enter the type of artifact store.\n" +
				"Use `local` for a directory shared by the experiment hosts, " +
				"or `s3` for an S3-compatible bucket.",
			prompt:        "Store type",
			defaultAnswer: defaults.Store.Type,
			currAnswer:    currConfig.Store.Type,
			field:         &cfg.Store.Type,
			validationFn:  storeTypeValidationFn,
		}})
		if err != nil {
			return config.User{}, err
		}
	}

	var prompts []prompt
	switch cfg.Store.Type {
	case config.LocalStore:
		if cliOpts.Store.Path == "" {
			prompts = append(prompts, prompt{
				helpString:    "Enter the directory to stage artifacts in.",
				prompt:        "Store directory",
				defaultAnswer: defaults.Store.Path,
				currAnswer:    currConfig.Store.Path,
				field:         &cfg.Store.Path,
			})
		}
	case config.S3Store:
		if cliOpts.Store.Endpoint == "" {
			prompts = append(prompts, prompt{
				helpString:    "Enter the address (host:port) of the S3 server.",
				prompt:        "S3 endpoint",
				defaultAnswer: defaults.Store.Endpoint,
				currAnswer:    currConfig.Store.Endpoint,
				field:         &cfg.Store.Endpoint,
			})
		}
		if cliOpts.Store.Bucket == "" {
			prompts = append(prompts, prompt{
				helpString: "Enter the bucket to stage artifacts in.\n" +
					"It will be created if it doesn't exist.",
				prompt:        "S3 bucket",
				defaultAnswer: defaults.Store.Bucket,
				currAnswer:    currConfig.Store.Bucket,
				field:         &cfg.Store.Bucket,
				validationFn:  bucketValidationFn,
			})
		}
	}

	if err := runPrompts(prompts); err != nil {
		return config.User{}, err
	}
	return cfg, nil
}

func runPrompts(prompts []prompt) error {
	for _, prompt := range prompts {
		var resp string
		var err error
		for {
			resp, err = promptUser(prompt.helpString, prompt.prompt,
				prompt.defaultAnswer, prompt.currAnswer)
			if err != nil {
				return errors.WithContext(err, "read response")
			}

			if prompt.validationFn == nil {
				break
			}

			validationErr, ok := prompt.validationFn(resp)
			if ok {
				break
			}

			fmt.Fprintln(stdout, validationErr)
		}

		*prompt.field = resp
	}
	return nil
}

// guessDefaults tries to guess reasonable defaults for the fields in the user
// config.
func guessDefaultsImpl() (cfg config.User) {
	cfg.Store.Type = config.LocalStore

	if home, err := getHomeDir(); err == nil {
		cfg.Store.Path = filepath.Join(home, ".mcstage", "store")
	} else {
		log.WithError(err).Info("Failed to guess store directory")
	}

	if bucket, err := guessBucket(); err == nil {
		cfg.Store.Bucket = bucket
	} else {
		log.WithError(err).Info("Failed to guess bucket")
	}

	return cfg
}

func sanitizeBucket(original string) (sanitized string) {
	sanitized = strings.ToLower(original)
	noInvalidChar := regexp.MustCompile(`[^-a-z0-9]`)
	sanitized = noInvalidChar.ReplaceAllString(sanitized, "")
	noLeadingOrTrailingHyphen := regexp.MustCompile(`^-*(.*?)-*$`)
	sanitized = noLeadingOrTrailingHyphen.ReplaceAllString(sanitized, "$1")
	if len(sanitized) > 63 {
		sanitized = strings.TrimRight(sanitized[:63], "-")
	}

	if _, ok := bucketValidationFn(sanitized); !ok {
		return ""
	}
	return sanitized
}

func guessBucket() (string, error) {
	u, err := getCurrentUser()
	if err != nil {
		return "", errors.WithContext(err, "get current user")
	}
	return sanitizeBucket("mcstage-" + u.Username), nil
}

func promptUser(helpString, prompt, defaultAnswer, currAnswer string) (string, error) {
	// Display a new line at the end to separate different fields to make it
	// look clearer.
	defer fmt.Fprintln(stdout)

	options := []string{}
	if defaultAnswer != "" {
		options = append(options, defaultAnswer)
	}
	if currAnswer != "" && currAnswer != defaultAnswer {
		options = append(options, currAnswer)
	}
	options = append(options, "(Enter manually)")

	fmt.Fprintln(stdout, helpString+"\n"+prompt+":")

	stdinReader := bufio.NewReader(stdin)

	if nOptions := len(options); nOptions > 1 {
		// defaultAnswer or currAnswer exists.
		fmt.Fprintln(stdout)
		for i, option := range options {
			if i == 0 {
				option = fmt.Sprintf("%s (recommended)", option)
			}
			fmt.Fprintf(stdout, "\t%d. %s\n", i+1, option)
		}
		fmt.Fprintln(stdout)

		for {
			fmt.Fprintf(stdout, "Please choose one [1-%d]: ", nOptions)
			choiceStr, err := stdinReader.ReadString('\n')
			if err != nil {
				return "", err
			}

			var choice int
			choiceStr = strings.TrimRight(choiceStr, "\n")

			// Default to the first choice if user doesn't enter anything.
			if choiceStr == "" {
				choice = 1
			} else {
				choice, err = strconv.Atoi(choiceStr)
				if err != nil || choice < 1 || choice > nOptions {
					// Try again if the input is invalid.
					continue
				}
			}

			if choice == nOptions {
				// Enter manually.
				break
			}

			return options[choice-1], nil
		}
	}

	fmt.Fprint(stdout, "Please enter manually: ")
	resp, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}

	return strings.TrimRight(resp, "\n"), nil
}
