// Package stages binds the pipeline stage catalogue to the external analysis
// tools. The descriptors here are the single source of truth for stage
// ordering, dependencies, fallback policies, and progress labels.
package stages
