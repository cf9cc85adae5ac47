package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers the Swagger UI and the OpenAPI document.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>coderev API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": {
    "title": "coderev",
    "version": "v0.1.0"
  },
  "components": {
    "securitySchemes": {
      "bearer": {
        "type": "http",
        "scheme": "bearer",
        "bearerFormat": "JWT"
      }
    }
  },
  "paths": {
    "/auth/login": {
      "post": {
        "summary": "Login (account, password or auth_code mode)",
        "responses": {
          "200": {
            "description": "tokens and live session id"
          },
          "401": {
            "description": "authentication failed"
          }
        },
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "properties": {
                  "mode": {
                    "type": "string"
                  },
                  "username": {
                    "type": "string"
                  },
                  "password": {
                    "type": "string"
                  },
                  "code": {
                    "type": "string"
                  },
                  "redirect_uri": {
                    "type": "string"
                  }
                }
              }
            }
          }
        },
        "tags": [
          "auth"
        ]
      }
    },
    "/auth/refresh": {
      "post": {
        "summary": "Refresh access token",
        "responses": {
          "200": {
            "description": "new access token"
          },
          "401": {
            "description": "invalid refresh"
          }
        },
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "properties": {
                  "refresh_token": {
                    "type": "string"
                  }
                }
              }
            }
          }
        },
        "tags": [
          "auth"
        ]
      }
    },
    "/auth/logout": {
      "post": {
        "summary": "Logout, invalidate refresh token and close the live session",
        "responses": {
          "200": {
            "description": "logged out"
          }
        },
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "properties": {
                  "refresh_token": {
                    "type": "string"
                  }
                }
              }
            }
          }
        },
        "tags": [
          "auth"
        ]
      }
    },
    "/functions/generateAccount": {
      "post": {
        "summary": "Generate a candidate account",
        "responses": {
          "200": {
            "description": "{result: {succeeded, message}}"
          }
        },
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "properties": {
                  "data": {
                    "type": "object"
                  }
                }
              }
            }
          }
        },
        "tags": [
          "functions"
        ]
      }
    },
    "/api/v1/live/open": {
      "post": {
        "summary": "Open the live session",
        "responses": {
          "200": {
            "description": "session id and profile"
          },
          "401": {
            "description": "login required"
          }
        },
        "tags": [
          "live"
        ]
      }
    },
    "/api/v1/live/pagehide": {
      "post": {
        "summary": "Dispose the live session's subscriptions",
        "responses": {
          "200": {
            "description": "closed"
          }
        },
        "tags": [
          "live"
        ]
      }
    },
    "/api/v1/live/stream": {
      "get": {
        "summary": "Server-Sent Events stream of store changes",
        "responses": {
          "200": {
            "description": "text/event-stream"
          }
        },
        "tags": [
          "live"
        ]
      }
    },
    "/api/v1/profile": {
      "get": {
        "summary": "Current profile",
        "responses": {
          "200": {
            "description": "profile"
          }
        },
        "tags": [
          "profile"
        ]
      }
    },
    "/api/v1/profile/notifications": {
      "patch": {
        "summary": "Update notification options",
        "responses": {
          "200": {
            "description": "profile"
          }
        },
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "properties": {
                  "receiveEmails": {
                    "type": "boolean"
                  },
                  "receiveFeedbackRequests": {
                    "type": "boolean"
                  }
                }
              }
            }
          }
        },
        "tags": [
          "profile"
        ]
      }
    },
    "/api/v1/workspaces": {
      "get": {
        "summary": "Workspaces the caller collaborates on",
        "responses": {
          "200": {
            "description": "workspaces"
          }
        },
        "tags": [
          "workspaces"
        ]
      },
      "post": {
        "summary": "Create a workspace",
        "responses": {
          "201": {
            "description": "workspace"
          },
          "400": {
            "description": "invalid input"
          }
        },
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "properties": {
                  "name": {
                    "type": "string"
                  },
                  "description": {
                    "type": "string"
                  }
                }
              }
            }
          }
        },
        "tags": [
          "workspaces"
        ]
      }
    },
    "/api/v1/workspaces/{uid}": {
      "get": {
        "summary": "Open a workspace",
        "responses": {
          "200": {
            "description": "workspace"
          },
          "403": {
            "description": "forbidden"
          },
          "404": {
            "description": "not found"
          }
        },
        "tags": [
          "workspaces"
        ]
      },
      "delete": {
        "summary": "Delete a workspace, its reviews and files",
        "responses": {
          "204": {
            "description": "deleted"
          },
          "403": {
            "description": "forbidden"
          }
        },
        "tags": [
          "workspaces"
        ]
      }
    },
    "/api/v1/workspaces/{uid}/sources": {
      "post": {
        "summary": "Upload a source file (multipart field 'file')",
        "responses": {
          "201": {
            "description": "media ref"
          },
          "400": {
            "description": "unsupported file"
          }
        },
        "tags": [
          "workspaces"
        ]
      }
    },
    "/api/v1/workspaces/{uid}/sources/{sourceUid}": {
      "get": {
        "summary": "Read the text of a source",
        "responses": {
          "200": {
            "description": "source ref and text"
          },
          "404": {
            "description": "not found"
          }
        },
        "tags": [
          "workspaces"
        ]
      },
      "delete": {
        "summary": "Remove a source",
        "responses": {
          "204": {
            "description": "removed"
          }
        },
        "tags": [
          "workspaces"
        ]
      }
    },
    "/api/v1/workspaces/{uid}/collaborators": {
      "post": {
        "summary": "Add a collaborator",
        "responses": {
          "201": {
            "description": "collaborator ref"
          },
          "403": {
            "description": "owner only"
          }
        },
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "properties": {
                  "profileUid": {
                    "type": "string"
                  },
                  "role": {
                    "type": "string"
                  }
                }
              }
            }
          }
        },
        "tags": [
          "workspaces"
        ]
      }
    },
    "/api/v1/workspaces/{uid}/ratings/{candidateUid}": {
      "put": {
        "summary": "Rate a candidate",
        "responses": {
          "200": {
            "description": "rating"
          }
        },
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "properties": {
                  "overall": {
                    "type": "integer"
                  },
                  "comments": {
                    "type": "string"
                  }
                }
              }
            }
          }
        },
        "tags": [
          "workspaces"
        ]
      }
    },
    "/api/v1/workspaces/{uid}/candidates": {
      "get": {
        "summary": "Candidate reviews of a workspace",
        "responses": {
          "200": {
            "description": "reviews"
          }
        },
        "tags": [
          "candidates"
        ]
      },
      "post": {
        "summary": "Create a candidate review",
        "responses": {
          "201": {
            "description": "review"
          }
        },
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "properties": {
                  "email": {
                    "type": "string"
                  },
                  "label": {
                    "type": "string"
                  }
                }
              }
            }
          }
        },
        "tags": [
          "candidates"
        ]
      }
    },
    "/api/v1/candidates/mine": {
      "get": {
        "summary": "Reviews assigned to the caller",
        "responses": {
          "200": {
            "description": "reviews"
          }
        },
        "tags": [
          "candidates"
        ]
      }
    },
    "/api/v1/candidates/{uid}": {
      "get": {
        "summary": "Open a candidate review",
        "responses": {
          "200": {
            "description": "review"
          },
          "403": {
            "description": "forbidden"
          },
          "404": {
            "description": "not found"
          }
        },
        "tags": [
          "candidates"
        ]
      }
    },
    "/api/v1/candidates/{uid}/sources/{sourceUid}": {
      "get": {
        "summary": "Read the text of a review source",
        "responses": {
          "200": {
            "description": "source ref and text"
          },
          "403": {
            "description": "forbidden"
          },
          "404": {
            "description": "not found"
          }
        },
        "tags": [
          "candidates"
        ]
      }
    },
    "/api/v1/candidates/{uid}/comments": {
      "post": {
        "summary": "Add a review comment",
        "responses": {
          "201": {
            "description": "comment"
          },
          "400": {
            "description": "invalid input"
          }
        },
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "properties": {
                  "text": {
                    "type": "string"
                  },
                  "sourceRange": {
                    "type": "array"
                  },
                  "contextType": {
                    "type": "string"
                  },
                  "contextUid": {
                    "type": "string"
                  }
                }
              }
            }
          }
        },
        "tags": [
          "candidates"
        ]
      }
    },
    "/api/v1/candidates/{uid}/comments/{commentUid}": {
      "delete": {
        "summary": "Remove one of the caller's comments",
        "responses": {
          "204": {
            "description": "removed"
          },
          "403": {
            "description": "not the author"
          }
        },
        "tags": [
          "candidates"
        ]
      }
    },
    "/health": {
      "get": {
        "summary": "Liveness check",
        "responses": {
          "200": {
            "description": "healthy"
          }
        }
      }
    },
    "/ready": {
      "get": {
        "summary": "Readiness check",
        "responses": {
          "200": {
            "description": "ready"
          },
          "503": {
            "description": "not ready"
          }
        }
      }
    },
    "/metrics": {
      "get": {
        "summary": "Prometheus metrics",
        "responses": {
          "200": {
            "description": "metrics"
          }
        }
      }
    }
  }
}`
