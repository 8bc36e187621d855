package runner

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/CybrosysAssista/Assista-IDE/models"
)

// cloneEnvironment is always set for clone processes.
// LC_ALL=C pins the english progress wording the parser matches on,
// GIT_TERMINAL_PROMPT=0 turns a credential prompt into an immediate failure.
var cloneEnvironment = []string{
	"LC_ALL=C",
	"GIT_TERMINAL_PROMPT=0",
}

// CloneCommand builds the single clone shape the pipeline uses:
//
//	git clone --depth 1 --branch <branch> --progress <url> <target>
//
// --progress forces progress output even though stderr is not a terminal.
func CloneCommand(gitBinary string, spec models.CloneSpec, extraEnv []string) Command {
	depth := spec.Depth
	if depth <= 0 {
		depth = 1
	}
	environment := append([]string{}, cloneEnvironment...)
	environment = append(environment, extraEnv...)

	return Command{
		Tool: gitBinary,
		Args: []string{
			"clone",
			"--depth", strconv.Itoa(depth),
			"--branch", spec.Branch,
			"--progress",
			spec.RepositoryURL,
			spec.TargetPath,
		},
		Env: environment,
	}
}

// DecodeEnvironment converts a JSON object of extra environment variables
// (GIT_EXTRA_ENV, eg {"GIT_SSL_NO_VERIFY":"1"}) into sorted "KEY=VALUE" pairs.
// an empty string means no extra variables.
func DecodeEnvironment(encodedEnvironment string) ([]string, error) {
	if encodedEnvironment == "" {
		return nil, nil
	}

	var environmentMap map[string]string
	errUnmarshal := json.Unmarshal([]byte(encodedEnvironment), &environmentMap)
	if errUnmarshal != nil {
		return nil, fmt.Errorf("failed to unmarshal environment variables JSON: %w", errUnmarshal)
	}
	if len(environmentMap) == 0 {
		return nil, nil
	}

	environmentList := make([]string, 0, len(environmentMap))
	for key, value := range environmentMap {
		environmentList = append(environmentList, key+"="+value)
	}
	// map order is random, sorting keeps the process environment reproducible
	sort.Strings(environmentList)
	return environmentList, nil
}
