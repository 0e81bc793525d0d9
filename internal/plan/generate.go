package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudhand/cloudhand/internal/config"
	"github.com/cloudhand/cloudhand/internal/errors"
	"github.com/cloudhand/cloudhand/internal/logger"
)

// planningInstructions is the system prompt handed to an external planning
// collaborator along with the payload.
const planningInstructions = `You are a DevOps Architect. You are given a user request and a repo URL.
You must generate a valid JSON plan adhering to the DesiredStateSpec.

For 'workloads' (Applications), analyze the request or assume standard practices:
1. If Node.js (package.json): Set runtime='nodejs'. build_config.install_command='npm install'. service_config.command='npm start'.
2. If Python (requirements.txt): Set runtime='python'. build_config.install_command='pip install -r requirements.txt'. service_config.command='gunicorn app:app'.
3. If Docker (Dockerfile): Set runtime='docker'.
4. Detect ports (e.g. 3000, 8000, 8080) and set service_config.ports=[...].

Hard constraints for deployment requests:
- If the description indicates the user wants to deploy or run an application and current_spec.instances is empty, you MUST create at least:
  - one NetworkSpec (e.g. an app network in the requested region),
  - one InstanceSpec for each logical host (e.g. app server),
  - one workload entry (ApplicationSpec) on that instance.
- Do NOT return a no-op or only comments in operations for deployment intents.

You must output a single JSON object:
{
  "operations": [...],
  "new_spec": { ... }
}

Output ONLY the JSON object with valid JSON.`

// Planner is an external planning collaborator. It receives instructions plus
// a JSON payload and returns the raw response text.
type Planner interface {
	Plan(ctx context.Context, instructions string, payload []byte) (string, error)
}

// payload is the input handed to the planner
type payload struct {
	Description string          `json:"description"`
	CurrentSpec json.RawMessage `json:"current_spec"`
	RepoPlan    json.RawMessage `json:"repo_plan"`
}

// Generate produces and saves a plan for the given change description.
// Without a planner it writes a no-op plan that keeps the current spec; with
// one, the response is parsed and sanity-checked, falling back to the no-op
// plan (with the failure recorded) when anything goes wrong.
func Generate(ctx context.Context, root, description string, planner Planner) (*Plan, string, error) {
	log := logger.New("plan")
	paths := config.NewPaths(root)

	specData, err := os.ReadFile(paths.SpecFile())
	if err != nil {
		return nil, "", errors.NewConfiguration("spec.json not found at %s; run 'cloudhand sync-spec' first", paths.SpecFile())
	}

	repoPlan := json.RawMessage("{}")
	if data, err := os.ReadFile(filepath.Join(root, "repo-plan.json")); err == nil && json.Valid(data) {
		repoPlan = data
	}

	fallback := &Plan{
		ID:         NewID(),
		Operations: []json.RawMessage{},
		NewSpec:    specData,
		Info:       "planner was not used; this plan contains no changes.",
	}

	result := fallback
	if planner != nil {
		input, err := json.Marshal(payload{
			Description: description,
			CurrentSpec: specData,
			RepoPlan:    repoPlan,
		})
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal planning payload: %w", err)
		}

		response, err := planner.Plan(ctx, planningInstructions, input)
		if err == nil {
			result, err = parseResponse(response)
			if err == nil {
				err = checkDeploymentIntent(result, description)
			}
		}
		if err != nil {
			log.Warn("planning failed, falling back to no-op plan", logger.Error(err))
			result = fallback
			result.Error = err.Error()
		} else {
			result.ID = NewID()
		}
	}

	path, err := result.Save(paths.PlansDir())
	if err != nil {
		return nil, "", err
	}
	log.Info("plan saved", logger.String("plan", result.ID))
	return result, path, nil
}

// parseResponse decodes a planner response, tolerating markdown code fences
// around the JSON body.
func parseResponse(content string) (*Plan, error) {
	body := content
	if strings.Contains(content, "```") {
		for _, part := range strings.Split(content, "```") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if strings.HasPrefix(strings.ToLower(part), "json") {
				part = strings.TrimSpace(part[4:])
			}
			if strings.HasPrefix(part, "{") {
				body = part
				break
			}
		}
	}

	var p Plan
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "planner returned invalid JSON")
	}
	if len(p.NewSpec) == 0 {
		return nil, errors.NewValidation("plan does not contain 'new_spec'")
	}
	return &p, nil
}

var deployKeywords = []string{"deploy", "run", "create", "provision", "setup", "install"}

// checkDeploymentIntent rejects plans that answer a deployment request with
// no instances to host anything.
func checkDeploymentIntent(p *Plan, description string) error {
	lower := strings.ToLower(description)
	isDeployment := false
	for _, kw := range deployKeywords {
		if strings.Contains(lower, kw) {
			isDeployment = true
			break
		}
	}
	if !isDeployment {
		return nil
	}

	var shape struct {
		Instances []json.RawMessage `json:"instances"`
	}
	if err := json.Unmarshal(p.NewSpec, &shape); err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "plan new_spec is not an object")
	}
	if len(shape.Instances) == 0 {
		return errors.NewValidation(
			"planning failed: the new spec has no instances defined for a deployment request")
	}
	return nil
}
