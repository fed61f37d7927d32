package apperr

// Template describes the registered defaults for a Kind.
type Template struct {
	Message string
	Hint    string
}

// registry maps kinds to their default message and the hint the CLI shows.
var registry = map[Kind]Template{
	KindAuthentication: {
		Message: "Your session has expired",
		Hint:    "Log in again to continue.",
	},
	KindForbidden: {
		Message: "You do not have permission to perform this action",
		Hint:    "Check that you are logged in with the right account.",
	},
	KindValidation: {
		Message: "The request contains invalid data",
		Hint:    "Correct the highlighted fields and try again.",
	},
	KindNotFound: {
		Message: "The requested resource was not found",
		Hint:    "This feature may be unavailable.",
	},
	KindServer: {
		Message: "The server encountered an error",
		Hint:    "Try again in a moment.",
	},
	KindNetwork: {
		Message: "Unable to reach the server",
		Hint:    "Check your connection and try again.",
	},
	KindTransitionPrecondition: {
		Message: "Order status change is not allowed",
		Hint:    "The order is not in a state that permits this change.",
	},
	KindUnknown: {
		Message: "Something went wrong",
	},
}

func defaultMessage(kind Kind) string {
	if t, ok := registry[kind]; ok {
		return t.Message
	}
	return registry[KindUnknown].Message
}

// Lookup returns the registered template for a kind.
func Lookup(kind Kind) (Template, bool) {
	t, ok := registry[kind]
	return t, ok
}
