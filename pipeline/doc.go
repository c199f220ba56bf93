// Package pipeline loads declarative pipeline definitions from YAML and
// builds them into agent trees.
//
// A definition names a root node; every node is an agent leaf or a
// sequential, parallel or loop composite:
//
//	name: blog
//	query: The Future of Artificial Intelligence in Everyday Life
//	root:
//	  type: sequential
//	  name: BlogPipelineAgent
//	  children:
//	    - type: agent
//	      name: OutlineAgent
//	      instruction: Create a blog outline for the given topic.
//	      output_key: blog_outline
//
// Default returns the built-in catalog.
package pipeline
