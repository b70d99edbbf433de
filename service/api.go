package service

// RPCMethodsResponse is the result of rpc_methods
type RPCMethodsResponse struct {
	Methods []string `json:"methods"`
}

// MethodsStatusResponse wraps values
// returned by calls to /status/methods
type MethodsStatusResponse struct {
	Methods       []MethodStatus       `json:"methods"`
	Subscriptions []SubscriptionStatus `json:"subscriptions"`
	Aliases       map[string]string    `json:"aliases"` // alias name -> name it refers to
}

// MethodStatus describes the chain of a single method
type MethodStatus struct {
	Name       string   `json:"name"`
	Injections []string `json:"injections,omitempty"` // kind@index in the order they run
	CacheSize  int      `json:"cache_size"`
	// CachedEntries is the number of results currently cached, unset when
	// caching is disabled or the cache could not be reached
	CachedEntries *int `json:"cached_entries,omitempty"`
}

// SubscriptionStatus describes a relayed subscription
type SubscriptionStatus struct {
	Name        string `json:"name"`
	Subscribe   string `json:"subscribe"`
	Unsubscribe string `json:"unsubscribe"`
}
