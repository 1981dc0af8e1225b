// Package config loads, normalizes, and validates Constellation configuration data.
//
// It supplies repository defaults (including the voice library, cultural
// contexts and cost tiers), expands user paths, reads TOML files, and honours
// environment fallbacks for service credentials such as ELEVENLABS_API_KEY.
// The Config type is passed explicitly to every component that needs a
// setting; nothing in the module reads configuration from globals.
package config
