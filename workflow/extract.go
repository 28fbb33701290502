package workflow

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON indicates the model response contained no JSON object at all,
// as opposed to containing one that failed to parse.
var ErrNoJSON = errors.New("no JSON object found in response")

var (
	fencedJSONRe = regexp.MustCompile("(?is)```json(.*?)```")
	fencedRe     = regexp.MustCompile("(?s)```(.*?)```")
)

// ExtractJSON locates the JSON object embedded in a model response. Models
// wrap structured output inconsistently, so extraction follows a fixed
// precedence: a ```json fenced block first, then any fenced block, then the
// outermost brace pair in the raw text. The candidate is returned unparsed;
// the caller owns unmarshalling and its failure handling.
func ExtractJSON(response string) (string, error) {
	if m := fencedJSONRe.FindStringSubmatch(response); m != nil {
		return strings.TrimSpace(m[1]), nil
	}
	if m := fencedRe.FindStringSubmatch(response); m != nil {
		candidate := strings.TrimSpace(m[1])
		if strings.HasPrefix(candidate, "{") {
			return candidate, nil
		}
	}

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end < start {
		return "", ErrNoJSON
	}
	return response[start : end+1], nil
}
