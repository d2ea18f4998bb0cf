package config

import (
	"bytes"
	"fmt"
	"io"
	"os/user"
	"strings"
	"testing"

	logrusTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"

	"github.com/sidkik/mcstage/pkg/config"
	"github.com/sidkik/mcstage/pkg/errors"
)

func TestPromptUser(t *testing.T) {
	tests := []struct {
		name                                                 string
		helpString, prompt, defaultAnswer, currAnswer, stdin string
		expPrompt, expResult                                 string
	}{
		{
			name:          "No default or current answer",
			helpString:    "explanation",
			prompt:        "prompt",
			defaultAnswer: "",
			currAnswer:    "",
			stdin:         "user input\n",
			expPrompt: "explanation\n" +
				"prompt:\n" +
				"Please enter manually: \n",
			expResult: "user input",
		},
		{
			name:          "No default answer only, chose current answer",
			helpString:    "different explanation",
			prompt:        "different prompt",
			defaultAnswer: "",
			currAnswer:    "current answer",
			stdin:         "1\n",
			expPrompt: "different explanation\n" +
				"different prompt:\n" +
				"\n" +
				"\t1. current answer (recommended)\n" +
				"\t2. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-2]: \n",
			expResult: "current answer",
		},
		{
			name:          "No default answer only, enter manually",
			helpString:    "different explanation",
			prompt:        "different prompt",
			defaultAnswer: "",
			currAnswer:    "current answer",
			stdin: "2\n" +
				"user input\n",
			expPrompt: "different explanation\n" +
				"different prompt:\n" +
				"\n" +
				"\t1. current answer (recommended)\n" +
				"\t2. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-2]: " +
				"Please enter manually: \n",
			expResult: "user input",
		},
		{
			name:          "No current answer only, chose default answer",
			helpString:    "different explanation",
			prompt:        "different prompt",
			defaultAnswer: "default answer",
			currAnswer:    "",
			stdin:         "1\n",
			expPrompt: "different explanation\n" +
				"different prompt:\n" +
				"\n" +
				"\t1. default answer (recommended)\n" +
				"\t2. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-2]: \n",
			expResult: "default answer",
		},
		{
			name:          "No current answer only, enter manually",
			helpString:    "different explanation",
			prompt:        "different prompt",
			defaultAnswer: "default answer",
			currAnswer:    "",
			stdin: "2\n" +
				"user input\n",
			expPrompt: "different explanation\n" +
				"different prompt:\n" +
				"\n" +
				"\t1. default answer (recommended)\n" +
				"\t2. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-2]: " +
				"Please enter manually: \n",
			expResult: "user input",
		},
		{
			name:          "Same default answer and current answer, chose default answer",
			helpString:    "different explanation",
			prompt:        "different prompt",
			defaultAnswer: "default answer",
			currAnswer:    "default answer",
			stdin:         "1\n",
			expPrompt: "different explanation\n" +
				"different prompt:\n" +
				"\n" +
				"\t1. default answer (recommended)\n" +
				"\t2. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-2]: \n",
			expResult: "default answer",
		},
		{
			name:          "Same default answer and current answer, enter manually",
			helpString:    "different explanation",
			prompt:        "different prompt",
			defaultAnswer: "default answer",
			currAnswer:    "default answer",
			stdin: "2\n" +
				"user input",
			expPrompt: "different explanation\n" +
				"different prompt:\n" +
				"\n" +
				"\t1. default answer (recommended)\n" +
				"\t2. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-2]: " +
				"Please enter manually: \n",
			expResult: "user input",
		},
		{
			name:          "Different default answer and current answer, chose default answer",
			helpString:    "different explanation",
			prompt:        "different prompt",
			defaultAnswer: "default answer",
			currAnswer:    "current answer",
			stdin:         "1\n",
			expPrompt: "different explanation\n" +
				"different prompt:\n" +
				"\n" +
				"\t1. default answer (recommended)\n" +
				"\t2. current answer\n" +
				"\t3. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-3]: \n",
			expResult: "default answer",
		},
		{
			name:          "Empty response -- pick default",
			helpString:    "help",
			prompt:        "prompt",
			defaultAnswer: "one",
			currAnswer:    "two",
			stdin:         "\n",
			expPrompt: "help\n" +
				"prompt:\n" +
				"\n" +
				"\t1. one (recommended)\n" +
				"\t2. two\n" +
				"\t3. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-3]: \n",
			expResult: "one",
		},
		{
			name:          "Different default answer and current answer, chose current answer",
			helpString:    "different explanation",
			prompt:        "different prompt",
			defaultAnswer: "default answer",
			currAnswer:    "current answer",
			stdin:         "2\n",
			expPrompt: "different explanation\n" +
				"different prompt:\n" +
				"\n" +
				"\t1. default answer (recommended)\n" +
				"\t2. current answer\n" +
				"\t3. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-3]: \n",
			expResult: "current answer",
		},
		{
			name:          "Different default answer and current answer, enter manually",
			helpString:    "different explanation",
			prompt:        "different prompt",
			defaultAnswer: "default answer",
			currAnswer:    "current answer",
			stdin: "3\n" +
				"user input\n",
			expPrompt: "different explanation\n" +
				"different prompt:\n" +
				"\n" +
				"\t1. default answer (recommended)\n" +
				"\t2. current answer\n" +
				"\t3. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-3]: " +
				"Please enter manually: \n",
			expResult: "user input",
		},
		{
			name:          "Invalid input",
			helpString:    "different explanation",
			prompt:        "different prompt",
			defaultAnswer: "default answer",
			currAnswer:    "current answer",
			stdin: "invalid input\n" +
				"1\n",
			expPrompt: "different explanation\n" +
				"different prompt:\n" +
				"\n" +
				"\t1. default answer (recommended)\n" +
				"\t2. current answer\n" +
				"\t3. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-3]: " +
				"Please choose one [1-3]: \n",
			expResult: "default answer",
		},
	}

	type promptUserResult struct {
		resp string
		err  error
	}
	for _, test := range tests {
		// Setup mocks.
		out := bytes.NewBuffer(nil)
		stdinReader, stdinWriter := io.Pipe()
		stdout = out
		stdin = stdinReader

		// Start the promptUser function.
		resultChan := make(chan promptUserResult)
		go func() {
			resp, err := promptUser(test.helpString, test.prompt,
				test.defaultAnswer, test.currAnswer)
			resultChan <- promptUserResult{resp, err}
		}()

		// Provide the user input.
		fmt.Fprintln(stdinWriter, test.stdin)

		// Check that promptUser behaved as expected.
		result := <-resultChan
		assert.NoError(t, result.err, test.name)
		assert.Equal(t, test.expResult, result.resp, test.name)

		// Test the prompt after `promptUser` has exited so that we can be sure
		// we're not testing before `promptUser` has a chance to print to stdout.
		assert.Equal(t, test.expPrompt, out.String(), test.name)
	}
}

func TestBucketValidation(t *testing.T) {
	tests := []struct {
		name   string
		bucket string
		expOK  bool
	}{
		{
			name:   "Valid bucket",
			bucket: "mcstage-alice",
			expOK:  true,
		},
		{
			name:   "Digits are allowed",
			bucket: "models2024",
			expOK:  true,
		},
		{
			name:   "Too short",
			bucket: "ab",
			expOK:  false,
		},
		{
			name:   "Too long",
			bucket: strings.Repeat("a", 64),
			expOK:  false,
		},
		{
			name:   "Maximum length",
			bucket: strings.Repeat("a", 63),
			expOK:  true,
		},
		{
			name:   "Uppercase characters",
			bucket: "Models",
			expOK:  false,
		},
		{
			name:   "Leading hyphen",
			bucket: "-models",
			expOK:  false,
		},
		{
			name:   "Trailing hyphen",
			bucket: "models-",
			expOK:  false,
		},
		{
			name:   "Underscore",
			bucket: "my_models",
			expOK:  false,
		},
	}

	for _, test := range tests {
		msg, ok := bucketValidationFn(test.bucket)
		assert.Equal(t, test.expOK, ok, test.name)
		if ok {
			assert.Empty(t, msg, test.name)
		} else {
			assert.NotEmpty(t, msg, test.name)
		}
	}
}

func TestStoreTypeValidation(t *testing.T) {
	_, ok := storeTypeValidationFn("local")
	assert.True(t, ok)

	_, ok = storeTypeValidationFn("s3")
	assert.True(t, ok)

	msg, ok := storeTypeValidationFn("gcs")
	assert.False(t, ok)
	assert.Equal(t, `The store type must be either "local" or "s3".`, msg)
}

func TestBucketSanitization(t *testing.T) {
	tests := []struct {
		original, expSanitized string
	}{
		{"mcstage-alice", "mcstage-alice"},
		{"mcstage-Alice.Smith", "mcstage-alicesmith"},
		{"mcstage-alice_", "mcstage-alice"},
		{"mcstage-" + strings.Repeat("a", 60), "mcstage-" + strings.Repeat("a", 55)},
		{"mcstage-" + strings.Repeat("-", 60) + "a", "mcstage"},
		{"__", ""},
		{"--a--", ""},
	}

	for _, test := range tests {
		assert.Equal(t, test.expSanitized, sanitizeBucket(test.original), test.original)
	}
}

func TestGenerateConfig(t *testing.T) {
	defaults := config.User{
		Store: config.Store{
			Type:   "local",
			Path:   "/home/alice/.mcstage/store",
			Bucket: "mcstage-alice",
		},
	}

	tests := []struct {
		name                string
		cliOpts             config.User
		mockParseUserConfig func() (config.User, error)
		inputs              []string
		expPrompt           string
		expConfig           config.User
	}{
		{
			name: "Initial setup -- ~/.mcstage.yaml doesn't exist yet",
			mockParseUserConfig: func() (config.User, error) {
				return config.User{}, errors.FileNotFound{}
			},
			inputs: []string{"1\n", "1\n"},
			expPrompt: "Enter the type of artifact store.\n" +
				"Use `local` for a directory shared by the experiment hosts, " +
				"or `s3` for an S3-compatible bucket.\n" +
				"Store type:\n" +
				"\n" +
				"\t1. local (recommended)\n" +
				"\t2. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-2]: \n" +
				"Enter the directory to stage artifacts in.\n" +
				"Store directory:\n" +
				"\n" +
				"\t1. /home/alice/.mcstage/store (recommended)\n" +
				"\t2. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-2]: \n",
			expConfig: config.User{
				Store: config.Store{
					Type: "local",
					Path: "/home/alice/.mcstage/store",
				},
			},
		},
		{
			name: "S3 store with the current endpoint",
			mockParseUserConfig: func() (config.User, error) {
				return config.User{
					Store: config.Store{
						Type:     "s3",
						Endpoint: "minio:9000",
						Bucket:   "models",
					},
				}, nil
			},
			inputs: []string{"2\n", "1\n", "1\n"},
			expPrompt: "Enter the type of artifact store.\n" +
				"Use `local` for a directory shared by the experiment hosts, " +
				"or `s3` for an S3-compatible bucket.\n" +
				"Store type:\n" +
				"\n" +
				"\t1. local (recommended)\n" +
				"\t2. s3\n" +
				"\t3. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-3]: \n" +
				"Enter the address (host:port) of the S3 server.\n" +
				"S3 endpoint:\n" +
				"\n" +
				"\t1. minio:9000 (recommended)\n" +
				"\t2. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-2]: \n" +
				"Enter the bucket to stage artifacts in.\n" +
				"It will be created if it doesn't exist.\n" +
				"S3 bucket:\n" +
				"\n" +
				"\t1. mcstage-alice (recommended)\n" +
				"\t2. models\n" +
				"\t3. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-3]: \n",
			expConfig: config.User{
				Store: config.Store{
					Type:     "s3",
					Endpoint: "minio:9000",
					Bucket:   "mcstage-alice",
				},
			},
		},
		{
			name: "Invalid store type is prompted again",
			mockParseUserConfig: func() (config.User, error) {
				return config.User{}, nil
			},
			inputs: []string{"2\n", "gcs\n", "2\n", "local\n", "1\n"},
			expPrompt: "Enter the type of artifact store.\n" +
				"Use `local` for a directory shared by the experiment hosts, " +
				"or `s3` for an S3-compatible bucket.\n" +
				"Store type:\n" +
				"\n" +
				"\t1. local (recommended)\n" +
				"\t2. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-2]: Please enter manually: \n" +
				"The store type must be either \"local\" or \"s3\".\n" +
				"Enter the type of artifact store.\n" +
				"Use `local` for a directory shared by the experiment hosts, " +
				"or `s3` for an S3-compatible bucket.\n" +
				"Store type:\n" +
				"\n" +
				"\t1. local (recommended)\n" +
				"\t2. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-2]: Please enter manually: \n" +
				"Enter the directory to stage artifacts in.\n" +
				"Store directory:\n" +
				"\n" +
				"\t1. /home/alice/.mcstage/store (recommended)\n" +
				"\t2. (Enter manually)\n" +
				"\n" +
				"Please choose one [1-2]: \n",
			expConfig: config.User{
				Store: config.Store{
					Type: "local",
					Path: "/home/alice/.mcstage/store",
				},
			},
		},
		{
			name: "Command line options skip the prompts",
			cliOpts: config.User{
				Store: config.Store{
					Type:     "s3",
					Endpoint: "cli-endpoint:9000",
					Bucket:   "cli-bucket",
				},
				OnUnknown: "fail",
			},
			mockParseUserConfig: func() (config.User, error) {
				return config.User{}, nil
			},
			expConfig: config.User{
				Store: config.Store{
					Type:     "s3",
					Endpoint: "cli-endpoint:9000",
					Bucket:   "cli-bucket",
				},
				OnUnknown: "fail",
			},
		},
	}

	type generateConfigResult struct {
		cfg config.User
		err error
	}

	for _, test := range tests {
		test := test

		// Setup mocks.
		out := bytes.NewBuffer(nil)
		stdinReader, stdinWriter := io.Pipe()
		stdout = out
		stdin = stdinReader
		guessDefaults = func() config.User { return defaults }
		parseUserConfig = test.mockParseUserConfig

		// Start the generateConfig function.
		resultChan := make(chan generateConfigResult)
		go func() {
			resp, err := generateConfig(test.cliOpts)
			resultChan <- generateConfigResult{resp, err}
		}()

		// Provide the user input.
		for _, input := range test.inputs {
			fmt.Fprint(stdinWriter, input)
		}

		// Check that generateConfig behaved as expected.
		result := <-resultChan
		assert.NoError(t, result.err, test.name)
		assert.Equal(t, test.expConfig, result.cfg, test.name)

		// Test the prompt after `generateConfig` has exited so that we can be sure
		// we're not testing before `generateConfig` has a chance to print to stdout.
		assert.Equal(t, test.expPrompt, out.String(), test.name)
	}
}

func TestSetupConfigRejectsUnknownPolicy(t *testing.T) {
	err := SetupConfig(config.User{OnUnknown: "sometimes"})
	assert.Error(t, err)
}

func TestGuessDefaults(t *testing.T) {
	tests := []struct {
		name           string
		getHomeDir     func() (string, error)
		getCurrentUser func() (*user.User, error)
		expCfg         config.User
		expLogs        []string
	}{
		{
			name: "Success case",
			getHomeDir: func() (string, error) {
				return "/home/alice", nil
			},
			getCurrentUser: func() (*user.User, error) {
				return &user.User{Username: "Alice"}, nil
			},
			expCfg: config.User{
				Store: config.Store{
					Type:   "local",
					Path:   "/home/alice/.mcstage/store",
					Bucket: "mcstage-alice",
				},
			},
		},
		{
			name: "Failure case",
			getHomeDir: func() (string, error) {
				return "", errors.New("error")
			},
			getCurrentUser: func() (*user.User, error) {
				return nil, errors.New("error")
			},
			expCfg: config.User{
				Store: config.Store{Type: "local"},
			},
			expLogs: []string{
				"Failed to guess store directory",
				"Failed to guess bucket",
			},
		},
	}

	for _, test := range tests {
		// Setup mocks.
		getHomeDir = test.getHomeDir
		getCurrentUser = test.getCurrentUser
		logHook := logrusTest.NewGlobal()

		assert.Equal(t, test.expCfg, guessDefaultsImpl(), test.name)
		assert.Len(t, logHook.Entries, len(test.expLogs), test.name)
		for i, log := range test.expLogs {
			assert.Equal(t, log, logHook.Entries[i].Message, test.name)
		}
	}
}

func TestGetters(t *testing.T) {
	configCmd := New()
	storeCmd, _, err := configCmd.Find([]string{"get-store"})
	assert.NoError(t, err)
	onUnknownCmd, _, err := configCmd.Find([]string{"get-on-unknown"})
	assert.NoError(t, err)

	parseUserConfig = func() (config.User, error) {
		return config.User{
			Store: config.Store{
				Type:     "s3",
				Endpoint: "minio:9000",
				Bucket:   "models",
			},
		}, nil
	}

	out := bytes.NewBuffer(nil)
	stdout = out

	storeCmd.Run(nil, nil)
	onUnknownCmd.Run(nil, nil)
	assert.Equal(t, "s3 minio:9000/models\nskip\n", out.String())

	parseUserConfig = func() (config.User, error) {
		return config.User{
			Store:     config.Store{Type: "local", Path: "/srv/store"},
			OnUnknown: "upload",
		}, nil
	}

	out.Reset()
	storeCmd.Run(nil, nil)
	onUnknownCmd.Run(nil, nil)
	assert.Equal(t, "local /srv/store\nupload\n", out.String())
}
