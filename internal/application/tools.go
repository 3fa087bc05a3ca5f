package application

import (
	"fmt"
	"strings"

	"voice-bridge/internal/domain"
)

const (
	CatalogDirect        = "direct"
	CatalogDiscoverFirst = "discover"
)

// Tool is one entry of a catalog: the definition shown to the model and the
// translation of its input into a concrete action.
type Tool struct {
	Spec   ToolSpec
	Decode func(input map[string]any) (domain.Action, error)
}

// Catalog is the set of tools offered to the model plus the system prompt
// that explains how to use them.
type Catalog struct {
	Name   string
	System string
	tools  []Tool
	byName map[string]Tool
}

func newCatalog(name, system string, tools ...Tool) *Catalog {
	c := &Catalog{Name: name, System: system, tools: tools, byName: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		c.byName[t.Spec.Name] = t
	}
	return c
}

func (c *Catalog) Specs() []ToolSpec {
	specs := make([]ToolSpec, len(c.tools))
	for i, t := range c.tools {
		specs[i] = t.Spec
	}
	return specs
}

// Decode maps a tool call onto an action.
func (c *Catalog) Decode(call ToolCall) (domain.Action, error) {
	t, ok := c.byName[call.Name]
	if !ok {
		return domain.Action{}, &domain.UnknownToolError{Name: call.Name}
	}
	return t.Decode(call.Input)
}

// CatalogByName returns the named catalog variant.
func CatalogByName(name string) (*Catalog, error) {
	switch name {
	case CatalogDirect, "":
		return DirectCatalog(), nil
	case CatalogDiscoverFirst:
		return DiscoverFirstCatalog(), nil
	default:
		return nil, fmt.Errorf("unknown tool catalog %q", name)
	}
}

const directSystemPrompt = `You are a voice assistant for a Home Assistant smart home.
Answer in one or two short sentences suitable for text-to-speech.

Tools:
- get_state: read the current state of an entity.
- call_service: control devices (turn on/off lights, set temperatures, lock doors).
- list_entities: discover entities of a domain, optionally filtered by a search phrase.

Use real data from the tools; never guess entity ids. When a command needs
several steps, perform them in the order they must happen.`

// DirectCatalog suits a capable model that can go straight to reads and
// service calls.
func DirectCatalog() *Catalog {
	return newCatalog(CatalogDirect, directSystemPrompt,
		Tool{
			Spec: ToolSpec{
				Name:        "get_state",
				Description: "Get the current state of a Home Assistant entity, e.g. whether a light is on or a sensor reading.",
				Params: map[string]ParamSpec{
					"entity_id": {Type: "string", Description: "The entity id (e.g. light.living_room, sensor.pool_temperature)"},
				},
				Required: []string{"entity_id"},
			},
			Decode: decodeReadState,
		},
		Tool{
			Spec: ToolSpec{
				Name:        "call_service",
				Description: "Call a Home Assistant service to control a device.",
				Params: map[string]ParamSpec{
					"domain":    {Type: "string", Description: "The service domain (e.g. light, switch, climate, lock)"},
					"service":   {Type: "string", Description: "The service to call (e.g. turn_on, turn_off, set_temperature, lock)"},
					"entity_id": {Type: "string", Description: "The exact entity id to act on"},
					"area_id":   {Type: "string", Description: "An area id to act on instead of a single entity"},
					"data":      {Type: "object", Description: "Additional service data (e.g. brightness, temperature)"},
				},
				Required: []string{"domain", "service"},
			},
			Decode: func(in map[string]any) (domain.Action, error) {
				return decodeCallService(stringArg(in, "domain"), in)
			},
		},
		Tool{
			Spec: ToolSpec{
				Name:        "list_entities",
				Description: "List entities of a domain (e.g. all lights). Pass search to rank them by name.",
				Params: map[string]ParamSpec{
					"domain": {Type: "string", Description: "The domain to list (e.g. light, switch, sensor, climate, cover)"},
					"search": {Type: "string", Description: "Optional device name to search for"},
				},
				Required: []string{"domain"},
			},
			Decode: decodeFindEntities,
		},
	)
}

const discoverSystemPrompt = `You are a voice assistant for a Home Assistant smart home.
Answer in one short sentence suitable for text-to-speech.

You do not know any entity ids. ALWAYS call find_entities first to look up
the id of the device the user means, then use read_entity or control_entity
with an id returned by find_entities. Never invent ids.`

// DiscoverFirstCatalog constrains a cheaper model to look ids up before
// reading or acting.
func DiscoverFirstCatalog() *Catalog {
	return newCatalog(CatalogDiscoverFirst, discoverSystemPrompt,
		Tool{
			Spec: ToolSpec{
				Name:        "find_entities",
				Description: "Find entity ids by domain and device name. Call this before any other tool.",
				Params: map[string]ParamSpec{
					"domain": {Type: "string", Description: "Entity domain", Enum: []string{"light", "switch", "sensor", "binary_sensor", "climate", "cover", "lock", "fan", "media_player"}},
					"search": {Type: "string", Description: "Device name as the user said it (e.g. pool pump, bedroom light)"},
				},
				Required: []string{"domain", "search"},
			},
			Decode: func(in map[string]any) (domain.Action, error) {
				if stringArg(in, "search") == "" {
					return domain.Action{}, domain.NewValidationError("search", "required")
				}
				return decodeFindEntities(in)
			},
		},
		Tool{
			Spec: ToolSpec{
				Name:        "read_entity",
				Description: "Read the current state of an entity id returned by find_entities.",
				Params: map[string]ParamSpec{
					"entity_id": {Type: "string", Description: "Entity id returned by find_entities"},
				},
				Required: []string{"entity_id"},
			},
			Decode: decodeReadState,
		},
		Tool{
			Spec: ToolSpec{
				Name:        "control_entity",
				Description: "Control an entity id returned by find_entities.",
				Params: map[string]ParamSpec{
					"entity_id": {Type: "string", Description: "Entity id returned by find_entities"},
					"service":   {Type: "string", Description: "Service to call", Enum: []string{"turn_on", "turn_off", "toggle", "open_cover", "close_cover", "lock", "unlock", "set_temperature"}},
					"data":      {Type: "object", Description: "Additional service data (e.g. brightness, temperature)"},
				},
				Required: []string{"entity_id", "service"},
			},
			Decode: func(in map[string]any) (domain.Action, error) {
				id, err := targetArg(in, "entity_id")
				if err != nil {
					return domain.Action{}, err
				}
				if id == "" {
					return domain.Action{}, domain.NewValidationError("entity_id", "required")
				}
				return decodeCallService(domain.CategoryOf(id), in)
			},
		},
	)
}

func decodeReadState(in map[string]any) (domain.Action, error) {
	id, err := targetArg(in, "entity_id")
	if err != nil {
		return domain.Action{}, err
	}
	if id == "" {
		return domain.Action{}, domain.NewValidationError("entity_id", "required")
	}
	return domain.Action{Name: domain.ActionReadState, Input: domain.ActionInput{EntityID: id}}, nil
}

func decodeCallService(category string, in map[string]any) (domain.Action, error) {
	service := stringArg(in, "service")
	if category == "" || service == "" {
		return domain.Action{}, domain.NewValidationError("service", "domain and service are required")
	}
	entityID, err := targetArg(in, "entity_id")
	if err != nil {
		return domain.Action{}, err
	}
	areaID, err := targetArg(in, "area_id")
	if err != nil {
		return domain.Action{}, err
	}
	data, _ := in["data"].(map[string]any)
	return domain.Action{
		Name: domain.ActionCallService,
		Input: domain.ActionInput{
			Category:  category,
			Operation: service,
			EntityID:  entityID,
			AreaID:    areaID,
			Data:      data,
		},
	}, nil
}

func decodeFindEntities(in map[string]any) (domain.Action, error) {
	category := stringArg(in, "domain")
	if category == "" {
		return domain.Action{}, domain.NewValidationError("domain", "required")
	}
	return domain.Action{
		Name:  domain.ActionFindEntities,
		Input: domain.ActionInput{Category: category, Search: stringArg(in, "search")},
	}, nil
}

func stringArg(in map[string]any, key string) string {
	s, _ := in[key].(string)
	return strings.TrimSpace(s)
}

// targetArg reads an entity or area target. Models sometimes send a list;
// a single-element list is unwrapped, anything longer is rejected so the
// model retries with one call per target.
func targetArg(in map[string]any, key string) (string, error) {
	switch v := in[key].(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(v), nil
	case []any:
		switch len(v) {
		case 0:
			return "", nil
		case 1:
			s, ok := v[0].(string)
			if !ok {
				return "", domain.NewValidationError(key, "must be a string")
			}
			return strings.TrimSpace(s), nil
		default:
			return "", domain.NewValidationError(key, "one target per call; call the tool once for each")
		}
	default:
		return "", domain.NewValidationError(key, "must be a string")
	}
}
