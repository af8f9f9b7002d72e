/*
Package types defines core data structures used throughout inflight.

# Overview

The types package provides shared type definitions for:
  - Project documents (folders, requests, dimensions, variants)
  - Workspace documents (open tabs, selected variants)
  - Auth descriptors
  - Send results and history

# Documents

Project:
  - Versioned document, upgraded on load by the migrations package
  - Folders form a tree rooted at Tree; children live on the parent only
  - Requests are templates with {{name}} placeholders
  - Dimensions (ordered by DimOrder) list their variants
  - Variants carry a list of Var bindings

Workspace:
  - Opened resources and the selected tab
  - SelectedVariants: dimension id to variant id, insertion ordered
  - Expanded folders of the tree view

# Auth

Auth wraps a closed set of schemes:
  - NoAuth
  - AWSSigV4 with AWSProfileCredentials or AWSInlineCredentials

On the wire the descriptor is a tagged object:

	{"type": "none"}
	{"type": "aws_sigv4", "source": "aws_cli_profile", "region": "us-east-1", "service": "execute-api", "profile": "dev"}
	{"type": "aws_sigv4", "source": "inline", "region": "us-east-1", "service": "execute-api",
	 "accessKeyId": "...", "secretAccessKey": "...", "sessionToken": "..."}

Inline credentials are stored in plaintext with the project document.

# Results

RequestResult is handed to the presentation layer verbatim:

	{
	  "requestOptions": {"method": "GET", "url": "https://example.com/v1/items?id=42", ...},
	  "response": {
	    "httpVersion": "1.1",
	    "statusCode": 200,
	    "statusMessage": "OK",
	    "headers": {"content-type": "application/json"},
	    "rawHeaders": ["Content-Type", "application/json"],
	    "data": "{...}",
	    "peerCertificate": {...}
	  },
	  "duration": 42
	}
*/
package types
