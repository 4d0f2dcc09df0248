package generator

import (
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"
)

const systemPrompt = "You generate realistic sample data for a social media demo. Reply with JSON only."

// Prompt renders the natural-language instruction sent with the schema.
func Prompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate a JSON object with two keys: \"users\" and \"posts\" for a mini social media feed called %q.\n", req.AppName)
	fmt.Fprintf(&b, "- \"users\" should be an array of %d unique, creative user objects.\n", req.Users)
	fmt.Fprintf(&b, "- \"posts\" should be an array of %d diverse and engaging microblog posts, authored by the generated users.\n", req.Posts)
	fmt.Fprintf(&b, "- Post timestamps are ISO 8601 strings from within the last %s.\n", humanWindow(req))
	fmt.Fprintf(&b, "- likeCount is a random integer between 0 and %d.\n", req.MaxLikes)
	b.WriteString("- Comments on posts should also be authored by the generated users, with timestamps later than their post.\n")
	b.WriteString("- Ensure all IDs are unique UUIDs.\n")
	b.WriteString("- Make the content feel authentic and varied.")
	return b.String()
}

func humanWindow(req Request) string {
	hours := int(req.Window.Hours())
	if hours <= 0 {
		hours = 24
	}
	return fmt.Sprintf("%d hours", hours)
}

// Schema returns the JSON schema that constrains the provider response.
func Schema(req Request) jsonschema.Definition {
	user := jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"id":        {Type: jsonschema.String, Description: "A unique UUID for the user"},
			"name":      {Type: jsonschema.String, Description: "A plausible full name"},
			"username":  {Type: jsonschema.String, Description: "A short, creative username without spaces"},
			"avatarUrl": {Type: jsonschema.String, Description: "A URL from picsum.photos using a unique seed (e.g., https://picsum.photos/seed/{username}/100/100)"},
		},
		Required:             []string{"id", "name", "username", "avatarUrl"},
		AdditionalProperties: false,
	}

	comment := jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"id":        {Type: jsonschema.String, Description: "A unique UUID for the comment"},
			"authorId":  {Type: jsonschema.String, Description: "The id of one of the generated users"},
			"text":      {Type: jsonschema.String, Description: "A short, relevant comment"},
			"timestamp": {Type: jsonschema.String, Description: "An ISO 8601 string, later than the post's timestamp"},
		},
		Required:             []string{"id", "authorId", "text", "timestamp"},
		AdditionalProperties: false,
	}

	post := jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"id":       {Type: jsonschema.String, Description: "A unique UUID for the post"},
			"authorId": {Type: jsonschema.String, Description: "The id of one of the generated users"},
			"content": {
				Type:        jsonschema.String,
				Description: "A short post, 1-3 sentences, on topics like technology, travel, food, or daily life musings",
			},
			"timestamp": {
				Type:        jsonschema.String,
				Description: fmt.Sprintf("An ISO 8601 string from within the last %s", humanWindow(req)),
			},
			"likeCount": {
				Type:        jsonschema.Integer,
				Description: fmt.Sprintf("A random integer between 0 and %d", req.MaxLikes),
			},
			"comments": {Type: jsonschema.Array, Items: &comment},
		},
		Required:             []string{"id", "authorId", "content", "timestamp", "likeCount", "comments"},
		AdditionalProperties: false,
	}

	return jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"users": {
				Type:        jsonschema.Array,
				Description: fmt.Sprintf("An array of %d unique user objects", req.Users),
				Items:       &user,
			},
			"posts": {
				Type:        jsonschema.Array,
				Description: fmt.Sprintf("An array of %d diverse and engaging microblog posts", req.Posts),
				Items:       &post,
			},
		},
		Required:             []string{"users", "posts"},
		AdditionalProperties: false,
	}
}
