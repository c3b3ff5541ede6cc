package ai

import (
	"fmt"
	"strings"

	"github.com/devsync-io/devsync/backend/internal/model/project"
)

// ScaffoldFunc synthesizes a minimal file set from a prompt when the
// model output is unusable. The default keyword table is product
// content, not a contract; swap the function to change it.
type ScaffoldFunc func(prompt string) project.FileTree

// DefaultScaffold sniffs the prompt for common stacks and emits a
// matching starter file set. It always returns at least one file.
func DefaultScaffold(prompt string) project.FileTree {
	lower := strings.ToLower(prompt)
	tree := project.FileTree{}

	if containsAny(lower, "react", "component") {
		tree["Component.jsx"] = file(componentStub(prompt))
	}
	if containsAny(lower, "express", "server", "api") {
		tree["server.js"] = file(serverStub(prompt))
		tree["package.json"] = file(packageStub(prompt))
	}
	if containsAny(lower, "web", "page", "site") {
		tree["index.html"] = file(htmlStub(prompt))
		tree["style.css"] = file(cssStub())
		tree["script.js"] = file(scriptStub(prompt))
	}

	if len(tree) == 0 {
		tree["index.js"] = file(scriptStub(prompt))
	}
	return tree
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func file(contents string) project.FileNode {
	return project.FileNode{File: &project.FileContent{Contents: contents}}
}

func componentStub(prompt string) string {
	return fmt.Sprintf(`// Starter React component based on: %s
import React, { useState } from 'react';

const Component = ({ title = 'Component' }) => {
  const [count, setCount] = useState(0);

  return (
    <div className="component">
      <h2>{title}</h2>
      <p>Count: {count}</p>
      <button onClick={() => setCount(count + 1)}>Increment</button>
    </div>
  );
};

export default Component;
`, prompt)
}

func serverStub(prompt string) string {
	return fmt.Sprintf(`// Starter Express server based on: %s
const express = require('express');

const app = express();
app.use(express.json());

app.get('/', (req, res) => {
  res.json({ message: 'Hello World!' });
});

app.listen(3000, () => {
  console.log('Server is running on port 3000');
});
`, prompt)
}

func packageStub(prompt string) string {
	return fmt.Sprintf(`{
  "name": "starter-project",
  "version": "1.0.0",
  "description": "Project based on: %s",
  "main": "server.js",
  "scripts": {
    "start": "node server.js"
  },
  "dependencies": {
    "express": "^4.18.2"
  }
}
`, strings.ReplaceAll(prompt, `"`, `'`))
}

func htmlStub(prompt string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>%s</title>
  <link rel="stylesheet" href="style.css">
</head>
<body>
  <div class="container">
    <h1>Welcome</h1>
    <p>Starter page. Customize it as needed.</p>
    <button id="action-button">Click Me</button>
    <div id="result"></div>
  </div>
  <script src="script.js"></script>
</body>
</html>
`, htmlTitle(prompt))
}

func htmlTitle(prompt string) string {
	words := strings.Fields(prompt)
	if len(words) > 3 {
		words = words[:3]
	}
	return strings.Join(words, " ")
}

func cssStub() string {
	return `* {
  margin: 0;
  padding: 0;
  box-sizing: border-box;
}

body {
  font-family: Arial, sans-serif;
  line-height: 1.6;
  color: #333;
}

.container {
  max-width: 1200px;
  margin: 0 auto;
  padding: 20px;
}

button {
  background: #4caf50;
  color: white;
  border: none;
  padding: 10px 15px;
  border-radius: 4px;
  cursor: pointer;
}
`
}

func scriptStub(prompt string) string {
	return fmt.Sprintf(`// Starter script based on: %s

function main() {
  const button = document.getElementById('action-button');
  if (button) {
    button.addEventListener('click', () => {
      document.getElementById('result').textContent = 'Button was clicked!';
    });
  }
}

if (typeof document !== 'undefined') {
  document.addEventListener('DOMContentLoaded', main);
} else {
  console.log('script loaded');
}
`, prompt)
}
