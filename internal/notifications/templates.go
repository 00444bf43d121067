package notifications

import (
	"bytes"
	"fmt"
	"text/template"
)

// Template names known to the registry. External collaborators reference
// these by name in email queue payloads; job handlers use them directly.
const (
	TemplateMeetingReminderClient    = "meeting_reminder_client"
	TemplateMeetingReminderDietitian = "meeting_reminder_dietitian"
	TemplatePostSessionFeedback      = "post_session_feedback"
	TemplateBookingConfirmation      = "booking_confirmation"
	TemplateMealPlanDelivery         = "meal_plan_delivery"

	// templateGeneric is the fallback for unknown template names. Falling
	// back rather than erroring keeps a queue item deliverable even when the
	// collaborator ships a template name this worker does not know yet.
	templateGeneric = "generic"
)

// templateSources holds the plain-text body templates, rendered against the
// item's template data map. Missing keys render as zero values rather than
// failing, so a sparse data bag never fails a send.
var templateSources = map[string]string{
	TemplateMeetingReminderClient: `Hi {{.client_name}},

This is a reminder that your consultation with {{.dietitian_name}} starts in {{.minutes_until}} minutes ({{.starts_at}}).
{{if .meeting_url}}
Join here: {{.meeting_url}}
{{end}}
See you soon,
The Daiyet Team`,

	TemplateMeetingReminderDietitian: `Hi {{.dietitian_name}},

Reminder: your session with {{.client_name}} starts in {{.minutes_until}} minutes ({{.starts_at}}).
{{if .meeting_url}}
Join here: {{.meeting_url}}
{{end}}
The Daiyet Team`,

	TemplatePostSessionFeedback: `Hi {{.client_name}},

Thanks for attending your session with {{.dietitian_name}}. We'd love to hear how it went.

Share your feedback: {{.feedback_url}}

The Daiyet Team`,

	TemplateBookingConfirmation: `Hi {{.client_name}},

Your consultation with {{.dietitian_name}} on {{.starts_at}} is confirmed.
{{if .meeting_url}}
Join here: {{.meeting_url}}
{{end}}
The Daiyet Team`,

	TemplateMealPlanDelivery: `Hi {{.client_name}},

Your meal plan from {{.dietitian_name}} is ready.

View it here: {{.plan_url}}

The Daiyet Team`,

	templateGeneric: `Hello,

You have a new notification from Daiyet.

The Daiyet Team`,
}

// registry holds the parsed templates, built once at package init. A parse
// failure here is a programming error, so init panics.
var registry = mustParseTemplates()

func mustParseTemplates() map[string]*template.Template {
	parsed := make(map[string]*template.Template, len(templateSources))
	for name, src := range templateSources {
		t, err := template.New(name).Option("missingkey=zero").Parse(src)
		if err != nil {
			panic(fmt.Sprintf("notifications: invalid template %q: %v", name, err))
		}
		parsed[name] = t
	}
	return parsed
}

// Render produces the plain-text body for the named template. Unknown names
// fall back to the generic template; the bool reports whether the requested
// template was found.
func Render(name string, data map[string]any) (string, bool) {
	t, found := registry[name]
	if !found {
		t = registry[templateGeneric]
	}

	if data == nil {
		data = map[string]any{}
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		// missingkey=zero makes execution failures effectively unreachable
		// for map data, but fall back to the generic body just in case.
		var generic bytes.Buffer
		_ = registry[templateGeneric].Execute(&generic, map[string]any{})
		return generic.String(), false
	}

	return buf.String(), found
}
