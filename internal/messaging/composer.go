// Package messaging generates follow-up message text and delivers it
// through the WhatsApp gateway.
package messaging

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/techaura/outreach-engine/internal/domain"
	"github.com/techaura/outreach-engine/internal/followup"
	"github.com/techaura/outreach-engine/internal/pkg/logger"
)

// stageTemplates holds the Liquid sources per stage, indexed by attempt
// number so repeated nudges don't repeat themselves word-for-word. Attempts
// beyond the last variant reuse the last one.
var stageTemplates = map[domain.Stage][]string{
	domain.StageAskName: {
		"Hola{% if name != '' %} {{ name }}{% endif %}! Still there? What name should we put on your order?",
		"Just checking in — we only need a name to get your USB drive started.",
	},
	domain.StageAskProductType: {
		"Quick question pending: would you like music, videos, or movies on your drive?",
		"Your custom drive is waiting — music, videos, or movies?",
	},
	domain.StageAskCapacityOK: {
		"Does the {{ capacity | default: \"64GB\" }} drive work for you? It holds around {{ songs | default: \"12,000\" }} songs.",
		"Still deciding on size? The {{ capacity | default: \"64GB\" }} is our most popular pick.",
	},
	domain.StageAskGenres: {
		"Which genres should we load up{% if name != '' %}, {{ name }}{% endif %}? Cumbia, salsa, rock — you name it.",
		"Your drive is almost configured — just tell us your favorite genres.",
	},
	domain.StageAskArtists: {
		"Any must-have artists for your drive? Send a few names and we'll handle the rest.",
		"We're ready to curate — which artists can't be missing?",
	},
	domain.StageAskVideos: {
		"Want us to include music videos too? Just say yes and we'll add them.",
	},
	domain.StageAskAddress: {
		"Your order is almost ready! Where should we ship it?",
		"One last step — send us your shipping address and we'll get your drive out.",
	},
}

// fallbackMessages are the legacy hard-coded texts used when template
// rendering fails. Every schedulable stage has one.
var fallbackMessages = map[domain.Stage]string{
	domain.StageAskName:        "Hola! Still there? What name should we put on your order?",
	domain.StageAskProductType: "Would you like music, videos, or movies on your drive?",
	domain.StageAskCapacityOK:  "Does that drive size work for you?",
	domain.StageAskGenres:      "Which genres should we load onto your drive?",
	domain.StageAskArtists:     "Any must-have artists for your drive?",
	domain.StageAskVideos:      "Want us to include music videos too?",
	domain.StageAskAddress:     "Your order is almost ready! Where should we ship it?",
}

// Composer renders stage-specific follow-up messages with Liquid templates,
// caching parsed templates per (stage, variant).
type Composer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewComposer creates a composer with domain filters registered.
func NewComposer() *Composer {
	engine := liquid.NewEngine()
	engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})
	return &Composer{engine: engine}
}

// BuildMessage renders the follow-up for a stage and attempt. Rendering
// failures fall back to the legacy hard-coded message for the stage; only a
// stage with no template and no fallback is an error.
func (c *Composer) BuildMessage(ctx context.Context, session *domain.Session, stage domain.Stage, attempt int, tplCtx map[string]string) (followup.ComposedMessage, error) {
	variants := stageTemplates[stage]
	if len(variants) == 0 {
		if fb, ok := fallbackMessages[stage]; ok {
			return followup.ComposedMessage{Text: fb, TemplateID: "fallback:" + string(stage)}, nil
		}
		return followup.ComposedMessage{}, fmt.Errorf("no template for stage %s", stage)
	}

	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(variants) {
		idx = len(variants) - 1
	}
	templateID := fmt.Sprintf("%s:v%d", stage, idx+1)

	tpl, err := c.parse(templateID, variants[idx])
	if err != nil {
		logger.Warn("template parse failed, using fallback", "template_id", templateID, "error", err.Error())
		return c.fallback(stage)
	}

	out, err := tpl.RenderString(c.bindings(session, tplCtx))
	if err != nil {
		logger.Warn("template render failed, using fallback", "template_id", templateID, "error", err.Error())
		return c.fallback(stage)
	}

	return followup.ComposedMessage{Text: strings.TrimSpace(out), TemplateID: templateID}, nil
}

func (c *Composer) fallback(stage domain.Stage) (followup.ComposedMessage, error) {
	if fb, ok := fallbackMessages[stage]; ok {
		return followup.ComposedMessage{Text: fb, TemplateID: "fallback:" + string(stage)}, nil
	}
	return followup.ComposedMessage{}, fmt.Errorf("no fallback for stage %s", stage)
}

func (c *Composer) parse(id, source string) (*liquid.Template, error) {
	if cached, ok := c.cache.Load(id); ok {
		return cached.(*liquid.Template), nil
	}
	tpl, err := c.engine.ParseString(source)
	if err != nil {
		return nil, err
	}
	c.cache.Store(id, tpl)
	return tpl, nil
}

// bindings merges session conversation data under the question context;
// the context the flow captured at ask-time wins.
func (c *Composer) bindings(session *domain.Session, tplCtx map[string]string) map[string]interface{} {
	b := map[string]interface{}{
		"name":     "",
		"capacity": "",
		"songs":    "",
	}
	if session != nil {
		for k, v := range session.ConversationData {
			b[k] = v
		}
		if n, ok := session.ConversationData["customer_name"]; ok {
			b["name"] = n
		}
	}
	for k, v := range tplCtx {
		b[k] = v
	}
	return b
}
